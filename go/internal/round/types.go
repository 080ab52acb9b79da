package round

import (
	"time"

	"github.com/google/uuid"
)

// State is the sequencer's lifecycle state.
type State string

const (
	StateIdle      State = "IDLE"
	StateActive    State = "ACTIVE"
	StatePaused    State = "PAUSED"
	StateCommitted State = "COMMITTED"
	StateTimedOut  State = "TIMED_OUT"
	StateFinished  State = "FINISHED"
)

// Status is the lifecycle of a single round.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCommitted Status = "COMMITTED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// Reasons a session ends.
const (
	EndReasonCompleted = "completed"
	EndReasonTimeout   = "timeout"
	EndReasonOutcome   = "ended_by_outcome"
)

// RoundSpec describes one round before it is played.
type RoundSpec struct {
	Key      string
	Duration time.Duration // zero means Config.RoundDuration
	Prompt   any           // shown to the player
	Answer   any           // consulted by the Scorer, never presented
}

// Outcome is the Scorer's verdict on a committed action.
type Outcome struct {
	Points     int   `json:"points"`
	Correct    *bool `json:"correct,omitempty"`
	EndSession bool  `json:"end_session,omitempty"`
	// Repeat plays the same round again instead of moving on, up to
	// Config.MaxAttempts. EndSession takes precedence.
	Repeat bool           `json:"repeat,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Round is one played round. Index counts rounds in play order, so a
// repeated round gets a new Index but keeps its Position in Config.Rounds.
// Deadline and ActivatedAt are monotonic clock readings and are only
// meaningful relative to the sequencer's clock.
type Round struct {
	Index        int
	Position     int
	Attempt      int
	Key          string
	Status       Status
	Duration     time.Duration
	ActivatedAt  time.Time
	Deadline     time.Time
	CommittedAt  *time.Time
	Action       any
	ReactionTime time.Duration
	PausedFor    time.Duration
	Outcome      *Outcome
}

// Session is the append-only record of one play through the configured
// rounds. Cursor is the slice index of the active round, or -1.
type Session struct {
	ID                uuid.UUID
	Rounds            []Round
	Cursor            int
	PausedAccumulated time.Duration
	Score             int
	Committed         int
	TimedOut          int
	Correct           int
	StartedAt         time.Time
	EndedAt           time.Time
	EndReason         string
}

func newSession() *Session {
	return &Session{ID: uuid.New(), Cursor: -1}
}

func (s *Session) clone() Session {
	out := *s
	out.Rounds = make([]Round, len(s.Rounds))
	copy(out.Rounds, s.Rounds)
	return out
}

// Snapshot is the read-only view handed to presenters. Version grows with
// every presented transition, across resets too, so a consumer can drop
// snapshots older than one it already has.
type Snapshot struct {
	SessionID   uuid.UUID `json:"session_id"`
	Version     uint64    `json:"version"`
	Status      State     `json:"status"`
	RoundIndex  int       `json:"round_index"`
	Position    int       `json:"position"`
	Attempt     int       `json:"attempt,omitempty"`
	TotalRounds int       `json:"total_rounds"`
	RemainingMs int64     `json:"remaining_ms"`
	Score       int       `json:"score"`
	Prompt      any       `json:"prompt,omitempty"`
	LastOutcome *Outcome  `json:"last_outcome,omitempty"`
}
