package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

// OutboxEvent is a telemetry event waiting in, or read back from, the
// outbox table.
type OutboxEvent struct {
	Event     telemetry.Event
	CreatedAt time.Time
	SentAt    *time.Time
}

// Store is what the relay needs from the outbox table.
type Store interface {
	FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error)
	FetchByID(ctx context.Context, id uuid.UUID) (OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	CountUnsent(ctx context.Context) (int, error)
}

// Publisher forwards one event to the bus.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
