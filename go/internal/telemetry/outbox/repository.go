package outbox

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/mindgames/go/internal/sqlutil"
	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when an event is missing or already sent.
var ErrNotFound = errors.New("outbox event not found or already sent")

// Repository is the Postgres outbox. It is a telemetry.Writer on the
// producing side and a Store for the relay.
type Repository struct {
	db      *sql.DB
	queries *Queries
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:      db,
		queries: New(db),
	}
}

// Migrate creates the outbox table and its notify trigger.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate telemetry outbox: %w", err)
	}
	return nil
}

// Write inserts the event. Inserting the same event ID twice is a no-op.
func (r *Repository) Write(ctx context.Context, e telemetry.Event) error {
	err := r.queries.InsertOutboxEvent(ctx, InsertOutboxEventParams{
		ID:         e.ID,
		SessionID:  e.SessionID,
		GameID:     sqlutil.ToSqlString(e.GameID),
		PlayerID:   sqlutil.ToSqlString(e.PlayerID),
		RoundIndex: int32(e.RoundIndex),
		EventType:  string(e.Type),
		OccurredAt: e.Timestamp,
		Payload:    pqtype.NullRawMessage{RawMessage: e.Payload, Valid: len(e.Payload) > 0},
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", e.Type, err)
	}
	return nil
}

func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	events := make([]OutboxEvent, len(rows))
	for i, row := range rows {
		events[i] = fromRow(row)
	}
	return events, nil
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OutboxEvent{}, ErrNotFound
		}
		return OutboxEvent{}, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return fromRow(row), nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) CountUnsent(ctx context.Context) (int, error) {
	n, err := r.queries.CountUnsentOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return int(n), nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func fromRow(row TelemetryOutbox) OutboxEvent {
	ev := telemetry.Event{
		ID:         row.ID,
		Timestamp:  row.OccurredAt,
		SessionID:  row.SessionID,
		GameID:     sqlutil.FromSqlString(row.GameID, ""),
		PlayerID:   sqlutil.FromSqlString(row.PlayerID, ""),
		RoundIndex: int(row.RoundIndex),
		Type:       telemetry.EventType(row.EventType),
	}
	if row.Payload.Valid {
		ev.Payload = row.Payload.RawMessage
	}
	return OutboxEvent{
		Event:     ev,
		CreatedAt: row.CreatedAt,
		SentAt:    sqlutil.FromSqlTime(row.SentAt),
	}
}
