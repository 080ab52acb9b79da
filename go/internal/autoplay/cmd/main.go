package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/autoplay"
	"github.com/mcdev12/mindgames/go/internal/session"
)

type config struct {
	ServerURL    string        `env:"AUTOPLAY_SERVER_URL" envDefault:"http://localhost:8080"`
	GameID       string        `env:"AUTOPLAY_GAME"`
	PlayerID     string        `env:"AUTOPLAY_PLAYER" envDefault:"autoplay"`
	Sessions     int           `env:"AUTOPLAY_SESSIONS" envDefault:"1"`
	PollInterval time.Duration `env:"AUTOPLAY_POLL_INTERVAL" envDefault:"100ms"`
	ThinkTime    time.Duration `env:"AUTOPLAY_THINK_TIME" envDefault:"300ms"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("parse config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	client := session.NewClient(httpClient, cfg.ServerURL)

	gameIDs := []string{cfg.GameID}
	if cfg.GameID == "" {
		list, err := client.ListGames(ctx)
		if err != nil {
			log.Fatal().Err(err).Str("server", cfg.ServerURL).Msg("list games")
		}
		gameIDs = gameIDs[:0]
		for _, g := range list.Games {
			gameIDs = append(gameIDs, g.ID)
		}
	}

	log.Info().
		Str("server", cfg.ServerURL).
		Strs("games", gameIDs).
		Int("sessions", cfg.Sessions).
		Msg("starting autoplay")

	strategy := autoplay.NewRandomStrategy()
	failures := 0
	for _, gameID := range gameIDs {
		for i := 0; i < cfg.Sessions; i++ {
			p := autoplay.NewPlayer(client, strategy, autoplay.Config{
				GameID:       gameID,
				PlayerID:     cfg.PlayerID,
				PollInterval: cfg.PollInterval,
				ThinkTime:    cfg.ThinkTime,
			})
			res, err := p.Play(ctx)
			if autoplay.IsCancelled(err) {
				log.Info().Msg("autoplay interrupted")
				return
			}
			if err != nil {
				failures++
				log.Error().Err(err).Str("game_id", gameID).Msg("autoplay session failed")
				continue
			}
			log.Info().
				Str("game_id", gameID).
				Str("play_id", res.PlayID).
				Int("score", res.Final.Score).
				Msg("session complete")
		}
	}
	if failures > 0 {
		log.Fatal().Int("failures", failures).Msg("autoplay finished with failures")
	}
}
