package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

type RelayConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int32 // Max events to fetch per fallback pass
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
		BatchSize:  100,
	}
}

// Relay moves events from the outbox to the bus and marks them sent. A
// failed publish leaves the row unsent for the next fallback pass.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig

	mu        sync.Mutex
	processed uint64
	failed    uint64
	lastEvent time.Time
}

func NewRelay(store Store, publisher Publisher, cfg RelayConfig) *Relay {
	return &Relay{store: store, publisher: publisher, cfg: cfg}
}

// HandleNotification relays the event whose ID arrived on the notify
// channel.
func (r *Relay) HandleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := r.store.FetchByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return r.relay(ctx, event)
}

// ProcessUnsent relays one batch of unsent events, oldest first. It returns
// the number relayed.
func (r *Relay) ProcessUnsent(ctx context.Context) (int, error) {
	unsent, err := r.store.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	relayed := 0
	for _, event := range unsent {
		if err := r.relay(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.Event.ID.String()).Msg("failed to relay event")
			continue
		}
		relayed++
	}
	if len(unsent) > 0 {
		log.Info().
			Int("relayed", relayed).
			Int("total", len(unsent)).
			Msg("processed unsent outbox batch")
	}
	return relayed, nil
}

func (r *Relay) relay(ctx context.Context, event OutboxEvent) error {
	id := event.Event.ID
	if err := r.publishWithRetry(ctx, event); err != nil {
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := r.store.MarkSent(ctx, id); err != nil {
		log.Error().Err(err).Str("event_id", id.String()).Msg("failed to mark outbox event as sent")
		return err
	}

	r.mu.Lock()
	r.processed++
	r.lastEvent = time.Now()
	r.mu.Unlock()

	log.Debug().
		Str("event_id", id.String()).
		Str("event_type", string(event.Event.Type)).
		Msg("published and marked event as sent")
	return nil
}

// publishWithRetry attempts to publish an outbox event with a linear
// backoff between attempts.
func (r *Relay) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	attempt := 0
	publish := func() (struct{}, error) {
		attempt++
		return struct{}{}, r.publisher.Publish(ctx, event)
	}
	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Str("event_id", event.Event.ID.String()).
			Msg("failed to publish, retrying")
	}

	opts := append(telemetry.RetryOptions(r.cfg.MaxRetries, r.cfg.RetryDelay), backoff.WithNotify(notify))
	if _, err := backoff.Retry(ctx, publish, opts...); err != nil {
		return fmt.Errorf("publish failed after %d attempts: %w", attempt, err)
	}
	if attempt > 1 {
		log.Info().
			Int("attempt", attempt).
			Str("event_id", event.Event.ID.String()).
			Msg("publish succeeded after retry")
	}
	return nil
}

// Stats returns the number of relayed and failed events and when the last
// one was relayed.
func (r *Relay) Stats() (processed, failed uint64, last time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, r.failed, r.lastEvent
}
