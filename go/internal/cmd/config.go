package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/mcdev12/mindgames/go/internal/dbconfig"
)

type Config struct {
	DB       dbconfig.Config
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// CatalogPath overrides the embedded game catalog.
	CatalogPath string `env:"GAMES_CATALOG"`

	IdleTTL       time.Duration `env:"PLAY_IDLE_TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"PLAY_SWEEP_INTERVAL" envDefault:"1m"`

	Telemetry TelemetryConfig
}

// TelemetryConfig selects which sinks receive game events. Any
// combination may be enabled.
type TelemetryConfig struct {
	Log        bool   `env:"TELEMETRY_LOG" envDefault:"true"`
	Postgres   bool   `env:"TELEMETRY_POSTGRES" envDefault:"false"`
	SQLitePath string `env:"TELEMETRY_SQLITE_PATH"`
	MongoURI   string `env:"TELEMETRY_MONGO_URI"`
	MongoDB    string `env:"TELEMETRY_MONGO_DB" envDefault:"mindgames"`
	MongoColl  string `env:"TELEMETRY_MONGO_COLLECTION" envDefault:"game_events"`
	BufferSize int    `env:"TELEMETRY_BUFFER" envDefault:"1024"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("PLAY_SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	return &cfg, nil
}

func (c *Config) level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
