package results

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

//go:embed schema.sql
var schema string

var ErrNotFound = errors.New("session result not found")

// Summary is the stored result of one finished session.
type Summary struct {
	SessionID    uuid.UUID     `json:"session_id"`
	GameID       string        `json:"game_id"`
	PlayerID     string        `json:"player_id"`
	Reason       string        `json:"reason"`
	Score        int           `json:"score"`
	RoundsPlayed int           `json:"rounds_played"`
	TotalRounds  int           `json:"total_rounds"`
	Committed    int           `json:"committed"`
	TimedOut     int           `json:"timed_out"`
	Correct      int           `json:"correct"`
	TotalPaused  time.Duration `json:"total_paused"`
	Duration     time.Duration `json:"duration"`
	EndedAt      time.Time     `json:"ended_at"`
}

// SummaryFromEvent reads a SessionEnded event.
func SummaryFromEvent(e telemetry.Event) (Summary, error) {
	if e.Type != telemetry.EventTypeSessionEnded {
		return Summary{}, fmt.Errorf("event %s is %s, not %s", e.ID, e.Type, telemetry.EventTypeSessionEnded)
	}
	var p telemetry.SessionEndedPayload
	if err := e.DecodePayload(&p); err != nil {
		return Summary{}, err
	}
	d, err := time.ParseDuration(p.SessionDuration)
	if err != nil {
		return Summary{}, fmt.Errorf("bad session duration %q: %w", p.SessionDuration, err)
	}
	return Summary{
		SessionID:    e.SessionID,
		GameID:       e.GameID,
		PlayerID:     e.PlayerID,
		Reason:       p.Reason,
		Score:        p.Score,
		RoundsPlayed: p.RoundsPlayed,
		TotalRounds:  p.TotalRounds,
		Committed:    p.Committed,
		TimedOut:     p.TimedOut,
		Correct:      p.Correct,
		TotalPaused:  time.Duration(p.TotalPausedMs) * time.Millisecond,
		Duration:     d,
		EndedAt:      e.Timestamp,
	}, nil
}

// Store keeps session summaries in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create results pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping results database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate session results: %w", err)
	}
	return nil
}

// Save upserts a summary keyed by session ID.
func (s *Store) Save(ctx context.Context, sum Summary) error {
	tag, err := s.pool.Exec(ctx, `
        INSERT INTO session_results (
          session_id, game_id, player_id, reason, score,
          rounds_played, total_rounds, committed, timed_out, correct,
          total_paused_ms, duration_ms, ended_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (session_id) DO UPDATE SET
          reason = EXCLUDED.reason,
          score = EXCLUDED.score,
          rounds_played = EXCLUDED.rounds_played,
          committed = EXCLUDED.committed,
          timed_out = EXCLUDED.timed_out,
          correct = EXCLUDED.correct,
          total_paused_ms = EXCLUDED.total_paused_ms,
          duration_ms = EXCLUDED.duration_ms,
          ended_at = EXCLUDED.ended_at
    `,
		sum.SessionID, sum.GameID, sum.PlayerID, sum.Reason, sum.Score,
		sum.RoundsPlayed, sum.TotalRounds, sum.Committed, sum.TimedOut, sum.Correct,
		sum.TotalPaused.Milliseconds(), sum.Duration.Milliseconds(), sum.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session result: %w", err)
	}
	log.Debug().
		Str("session_id", sum.SessionID.String()).
		Int64("rows", tag.RowsAffected()).
		Msg("saved session result")
	return nil
}

const selectColumns = `
session_id, game_id, player_id, reason, score,
rounds_played, total_rounds, committed, timed_out, correct,
total_paused_ms, duration_ms, ended_at`

func (s *Store) Get(ctx context.Context, sessionID uuid.UUID) (Summary, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM session_results WHERE session_id = $1`, sessionID)
	sum, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("failed to get session result: %w", err)
	}
	return sum, nil
}

// ListRecent returns the latest results, newest first. An empty gameID
// lists every game.
func (s *Store) ListRecent(ctx context.Context, gameID string, limit int) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT `+selectColumns+`
        FROM session_results
        WHERE $1 = '' OR game_id = $1
        ORDER BY ended_at DESC
        LIMIT $2
    `, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session results: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session result: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func scanSummary(row pgx.Row) (Summary, error) {
	var (
		sum             Summary
		pausedMs, durMs int64
	)
	err := row.Scan(
		&sum.SessionID, &sum.GameID, &sum.PlayerID, &sum.Reason, &sum.Score,
		&sum.RoundsPlayed, &sum.TotalRounds, &sum.Committed, &sum.TimedOut, &sum.Correct,
		&pausedMs, &durMs, &sum.EndedAt,
	)
	sum.TotalPaused = time.Duration(pausedMs) * time.Millisecond
	sum.Duration = time.Duration(durMs) * time.Millisecond
	return sum, err
}
