package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/games"
	"github.com/mcdev12/mindgames/go/internal/gateway"
	"github.com/mcdev12/mindgames/go/internal/results"
	"github.com/mcdev12/mindgames/go/internal/session"
	"github.com/mcdev12/mindgames/go/internal/telemetry"
	"github.com/mcdev12/mindgames/go/internal/telemetry/mongosink"
	"github.com/mcdev12/mindgames/go/internal/telemetry/outbox"
	"github.com/mcdev12/mindgames/go/internal/telemetry/sqlitesink"
)

type Services struct {
	Manager *session.Manager
	Gateway *gateway.ConnectionManager
	Sinks   []*telemetry.AsyncSink

	sinksDone sync.WaitGroup
	closers   []func()
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	s := &Services{}

	catalog, err := games.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	// Writers → async sinks → fanout → sequencers
	fanout, err := s.setupTelemetry(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}

	s.Gateway = gateway.NewConnectionManager(nil, gateway.DefaultConnectionConfig())
	s.Manager = session.NewManager(catalog,
		session.Config{IdleTTL: cfg.IdleTTL, SweepInterval: cfg.SweepInterval},
		session.WithManagerSink(fanout),
		session.WithManagerPresenter(s.Gateway),
	)
	s.Gateway.SetCommander(s.Manager)

	log.Info().
		Int("games", len(catalog.List())).
		Int("telemetry_sinks", len(s.Sinks)).
		Msg("services ready")
	return s, nil
}

func (s *Services) setupTelemetry(ctx context.Context, cfg *Config) (telemetry.Fanout, error) {
	var fanout telemetry.Fanout
	if cfg.Telemetry.Log {
		fanout = append(fanout, telemetry.NewLogSink())
	}

	writers := map[string]telemetry.Writer{}

	if cfg.Telemetry.Postgres {
		database, err := setupDatabase(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { database.Close() })

		repo := outbox.NewRepository(database)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		writers["outbox"] = repo

		store, err := results.NewStore(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		writers["results"] = results.NewWriter(store)
	}

	if cfg.Telemetry.SQLitePath != "" {
		store, err := sqlitesink.Open(cfg.Telemetry.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite telemetry store: %w", err)
		}
		s.closers = append(s.closers, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("close sqlite telemetry store")
			}
		})
		writers["sqlite"] = store
		log.Info().Str("path", cfg.Telemetry.SQLitePath).Msg("sqlite telemetry enabled")
	}

	if cfg.Telemetry.MongoURI != "" {
		sink, err := mongosink.Connect(ctx, cfg.Telemetry.MongoURI, cfg.Telemetry.MongoDB, cfg.Telemetry.MongoColl)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.Close(closeCtx); err != nil {
				log.Error().Err(err).Msg("close mongo telemetry sink")
			}
		})
		writers["mongo"] = sink
		log.Info().Str("database", cfg.Telemetry.MongoDB).Msg("mongo telemetry enabled")
	}

	for name, w := range writers {
		acfg := telemetry.DefaultAsyncConfig(name)
		acfg.BufferSize = cfg.Telemetry.BufferSize
		sink := telemetry.NewAsyncSink(w, acfg)
		s.Sinks = append(s.Sinks, sink)
		fanout = append(fanout, sink)
	}
	return fanout, nil
}

// Start runs the background loops. The sinks outlive ctx so the events
// emitted while shutting down still reach them; Shutdown stops them.
func (s *Services) Start(ctx context.Context) {
	for _, sink := range s.Sinks {
		s.sinksDone.Add(1)
		go func(sink *telemetry.AsyncSink) {
			defer s.sinksDone.Done()
			sink.Run(context.Background())
		}(sink)
	}
	go s.Manager.Run(ctx)
	go s.Gateway.Start(ctx)
}

// Shutdown resets live plays, flushes the sinks and closes the stores.
func (s *Services) Shutdown() {
	s.Manager.Shutdown()
	for _, sink := range s.Sinks {
		sink.Close()
	}
	s.sinksDone.Wait()
	s.close()
}

func (s *Services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
