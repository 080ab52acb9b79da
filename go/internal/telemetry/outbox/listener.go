package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// NotifyChannel is the channel the schema's insert trigger notifies.
const NotifyChannel = "telemetry_outbox_events"

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	FallbackInterval time.Duration // How often to poll for missed events
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Listener drives a Relay from Postgres notifications, with a periodic
// sweep for anything a notification missed.
type Listener struct {
	relay    *Relay
	listener *pq.Listener
	cfg      ListenerConfig
	active   atomic.Bool
}

func NewListener(relay *Relay, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		relay:    relay,
		listener: l,
		cfg:      cfg,
	}, nil
}

// Start blocks until ctx is cancelled. A sweep runs first so events written
// while the relay was down go out immediately.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	l.active.Store(true)
	defer l.active.Store(false)

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	l.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications may have been lost
				l.sweep(ctx)
				continue
			}
			if err := l.relay.HandleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			l.sweep(ctx)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// Active reports whether Start is running.
func (l *Listener) Active() bool {
	return l.active.Load()
}

func (l *Listener) sweep(ctx context.Context) {
	if _, err := l.relay.ProcessUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}
}
