package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type TelemetryOutbox struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	GameID     sql.NullString
	PlayerID   sql.NullString
	RoundIndex int32
	EventType  string
	OccurredAt time.Time
	Payload    pqtype.NullRawMessage
	CreatedAt  time.Time
	SentAt     sql.NullTime
}

const insertOutboxEvent = `
INSERT INTO telemetry_outbox (id, session_id, game_id, player_id, round_index, event_type, occurred_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING
`

type InsertOutboxEventParams struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	GameID     sql.NullString
	PlayerID   sql.NullString
	RoundIndex int32
	EventType  string
	OccurredAt time.Time
	Payload    pqtype.NullRawMessage
}

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.ExecContext(ctx, insertOutboxEvent,
		arg.ID,
		arg.SessionID,
		arg.GameID,
		arg.PlayerID,
		arg.RoundIndex,
		arg.EventType,
		arg.OccurredAt,
		arg.Payload,
	)
	return err
}

const outboxColumns = `id, session_id, game_id, player_id, round_index, event_type, occurred_at, payload, created_at, sent_at`

const fetchUnsentOutbox = `
SELECT ` + outboxColumns + `
FROM telemetry_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
`

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]TelemetryOutbox, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TelemetryOutbox
	for rows.Next() {
		var i TelemetryOutbox
		if err := scanOutbox(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const fetchOutboxByID = `
SELECT ` + outboxColumns + `
FROM telemetry_outbox
WHERE id = $1 AND sent_at IS NULL
`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (TelemetryOutbox, error) {
	row := q.db.QueryRowContext(ctx, fetchOutboxByID, id)
	var i TelemetryOutbox
	err := scanOutbox(row, &i)
	return i, err
}

const markOutboxSent = `
UPDATE telemetry_outbox SET sent_at = now() WHERE id = $1
`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id)
	return err
}

const countUnsentOutbox = `
SELECT COUNT(*) FROM telemetry_outbox WHERE sent_at IS NULL
`

func (q *Queries) CountUnsentOutbox(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUnsentOutbox)
	var count int64
	err := row.Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOutbox(s scanner, i *TelemetryOutbox) error {
	return s.Scan(
		&i.ID,
		&i.SessionID,
		&i.GameID,
		&i.PlayerID,
		&i.RoundIndex,
		&i.EventType,
		&i.OccurredAt,
		&i.Payload,
		&i.CreatedAt,
		&i.SentAt,
	)
}
