package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/dbconfig"
	"github.com/mcdev12/mindgames/go/internal/telemetry/outbox"
)

type config struct {
	DB               dbconfig.Config
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	NATSURL          string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	StreamName       string        `env:"OUTBOX_STREAM" envDefault:"GAME_EVENTS"`
	SubjectPrefix    string        `env:"OUTBOX_SUBJECT_PREFIX" envDefault:"game.events"`
	FallbackInterval time.Duration `env:"FALLBACK_INTERVAL" envDefault:"30s"`
	HealthAddr       string        `env:"OUTBOX_HEALTH_ADDR" envDefault:":8082"`
	DryRun           bool          `env:"OUTBOX_DRY_RUN" envDefault:"false"`
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

	dsn := cfg.DB.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("database", cfg.DB.Database).
		Msg("connected to database")

	repo := outbox.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate outbox")
	}

	var (
		publisher    outbox.Publisher
		busConnected outbox.Probe
	)
	if cfg.DryRun {
		publisher = outbox.LogPublisher{SubjectPrefix: cfg.SubjectPrefix}
		log.Warn().Msg("dry run: events are logged, not published")
	} else {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		jsCfg.StreamName = cfg.StreamName
		jsCfg.SubjectPrefix = cfg.SubjectPrefix
		js, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create JetStream publisher")
		}
		defer func() {
			if err := js.Close(); err != nil {
				log.Error().Err(err).Msg("close publisher")
			}
		}()
		publisher = js
		busConnected = js.Conn().IsConnected
	}

	relay := outbox.NewRelay(repo, publisher, outbox.DefaultRelayConfig())

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.FallbackInterval = cfg.FallbackInterval
	listener, err := outbox.NewListener(relay, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	health := &outbox.HealthChecker{
		Relay:          relay,
		Store:          repo,
		DB:             repo,
		BusConnected:   busConnected,
		ListenerActive: listener.Active,
		Threshold:      5 * time.Minute,
		PendingWarn:    1000,
	}
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", health.MetricsHandler())
	srv := &http.Server{Addr: cfg.HealthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HealthAddr).Msg("health endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		<-errCh
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
