// Package sqlitesink stores telemetry in a local SQLite file, for offline
// play and development without Postgres.
package sqlitesink

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/mindgames/go/internal/sqlutil"
	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

//go:embed schema.sql
var schema string

// Store persists every event plus one row per finished round.
type Store struct {
	sqlDB *sql.DB
}

// RoundRow is one committed or timed-out round.
type RoundRow struct {
	EventID      uuid.UUID
	SessionID    uuid.UUID
	GameID       string
	RoundNumber  int
	RoundKey     string
	Action       json.RawMessage
	ReactionTime time.Duration
	Paused       time.Duration
	TimedOut     bool
	Correct      *bool
	Points       int
	OccurredAt   time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps writes serialized and an in-memory database alive.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type txQueries struct {
	tx *sql.Tx
}

func (q *txQueries) insertEvent(ctx context.Context, e telemetry.Event) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}
	_, err := q.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO game_events (
		   id, session_id, game_id, player_id, round_index, event_type, occurred_at, payload
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(),
		e.SessionID.String(),
		sqlutil.ToSqlString(e.GameID),
		sqlutil.ToSqlString(e.PlayerID),
		e.RoundIndex,
		string(e.Type),
		toMillis(e.Timestamp),
		payload,
	)
	return err
}

func (q *txQueries) insertRound(ctx context.Context, e telemetry.Event, p telemetry.RoundOutcomePayload) error {
	var action sql.NullString
	if p.Action != nil {
		data, err := json.Marshal(p.Action)
		if err != nil {
			return fmt.Errorf("marshal action: %w", err)
		}
		action = sql.NullString{String: string(data), Valid: true}
	}
	var correct sql.NullBool
	if p.Correct != nil {
		correct = sql.NullBool{Bool: *p.Correct, Valid: true}
	}
	_, err := q.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO game_rounds (
		   event_id, session_id, game_id, round_number, round_key, action,
		   reaction_time_ms, paused_ms, timed_out, is_correct, points, occurred_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(),
		e.SessionID.String(),
		sqlutil.ToSqlString(e.GameID),
		e.RoundIndex,
		sqlutil.ToSqlString(p.RoundKey),
		action,
		p.ReactionTimeMs,
		p.PausedMs,
		p.TimedOut,
		correct,
		p.Points,
		toMillis(e.Timestamp),
	)
	return err
}

// Write stores the event, and for round outcomes also the round row, in
// one transaction.
func (s *Store) Write(ctx context.Context, e telemetry.Event) error {
	var outcome *telemetry.RoundOutcomePayload
	if e.Type == telemetry.EventTypeActionCommitted || e.Type == telemetry.EventTypeRoundTimedOut {
		var p telemetry.RoundOutcomePayload
		if err := e.DecodePayload(&p); err != nil {
			return err
		}
		outcome = &p
	}

	err := sqlutil.Run(ctx, s.sqlDB,
		func(tx *sql.Tx) *txQueries { return &txQueries{tx: tx} },
		func(q *txQueries) error {
			if err := q.insertEvent(ctx, e); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
			if outcome != nil {
				if err := q.insertRound(ctx, e, *outcome); err != nil {
					return fmt.Errorf("insert round: %w", err)
				}
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("write %s to sqlite: %w", e.Type, err)
	}
	return nil
}

// ListSession returns a session's events in the order they happened.
func (s *Store) ListSession(ctx context.Context, sessionID uuid.UUID) ([]telemetry.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, session_id, game_id, player_id, round_index, event_type, occurred_at, payload
		 FROM game_events
		 WHERE session_id = ?
		 ORDER BY occurred_at, rowid`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Event
	for rows.Next() {
		var (
			id, session, typ string
			game, player     sql.NullString
			payload          sql.NullString
			index            int
			at               int64
		)
		if err := rows.Scan(&id, &session, &game, &player, &index, &typ, &at, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e := telemetry.Event{
			GameID:     sqlutil.FromSqlString(game, ""),
			PlayerID:   sqlutil.FromSqlString(player, ""),
			RoundIndex: index,
			Type:       telemetry.EventType(typ),
			Timestamp:  fromMillis(at),
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		if e.SessionID, err = uuid.Parse(session); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Rounds returns a session's round rows by round number.
func (s *Store) Rounds(ctx context.Context, sessionID uuid.UUID) ([]RoundRow, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT event_id, game_id, round_number, round_key, action,
		        reaction_time_ms, paused_ms, timed_out, is_correct, points, occurred_at
		 FROM game_rounds
		 WHERE session_id = ?
		 ORDER BY round_number, occurred_at`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var (
			id                   string
			game, key, action    sql.NullString
			reaction, paused, at int64
			correct              sql.NullBool
		)
		r := RoundRow{SessionID: sessionID}
		if err := rows.Scan(&id, &game, &r.RoundNumber, &key, &action,
			&reaction, &paused, &r.TimedOut, &correct, &r.Points, &at); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		if r.EventID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		r.GameID = sqlutil.FromSqlString(game, "")
		r.RoundKey = sqlutil.FromSqlString(key, "")
		if action.Valid {
			r.Action = json.RawMessage(action.String)
		}
		r.ReactionTime = time.Duration(reaction) * time.Millisecond
		r.Paused = time.Duration(paused) * time.Millisecond
		if correct.Valid {
			c := correct.Bool
			r.Correct = &c
		}
		r.OccurredAt = fromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
