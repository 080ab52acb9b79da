package telemetry

// Payload types shared by the sequencer, the sinks and the gateway.

// SessionStartedPayload is the payload for a SessionStarted event
type SessionStartedPayload struct {
	TotalRounds int  `json:"total_rounds"`
	AutoAdvance bool `json:"auto_advance"`
}

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	RoundKey            string `json:"round_key,omitempty"`
	Position            int    `json:"position"`
	Attempt             int    `json:"attempt"`
	ScheduledDurationMs int64  `json:"scheduled_duration_ms"`
	TotalRounds         int    `json:"total_rounds"`
}

// RoundPausedPayload is the payload for a RoundPaused event
type RoundPausedPayload struct {
	RemainingMs int64 `json:"remaining_ms"`
}

// RoundResumedPayload is the payload for a RoundResumed event
type RoundResumedPayload struct {
	RemainingMs int64 `json:"remaining_ms"`
	PausedMs    int64 `json:"paused_ms"`
}

// RoundOutcomePayload is the payload for ActionCommitted and RoundTimedOut
// events. Action is nil for a timeout; Correct is nil when the round has
// no right answer.
type RoundOutcomePayload struct {
	RoundKey       string `json:"round_key,omitempty"`
	Action         any    `json:"action"`
	ReactionTimeMs int64  `json:"reaction_time_ms"`
	PausedMs       int64  `json:"paused_ms"`
	Correct        *bool  `json:"correct,omitempty"`
	Points         int    `json:"points"`
	ScoreAfter     int    `json:"score_after"`
	TimedOut       bool   `json:"timed_out"`
	Repeat         bool   `json:"repeat,omitempty"`
	// Detail carries the scorer's per-round observations.
	Detail map[string]any `json:"detail,omitempty"`
}

// SessionEndedPayload summarises a finished session
type SessionEndedPayload struct {
	Reason          string `json:"reason"`
	Score           int    `json:"score"`
	RoundsPlayed    int    `json:"rounds_played"`
	TotalRounds     int    `json:"total_rounds"`
	Committed       int    `json:"committed"`
	TimedOut        int    `json:"timed_out"`
	Correct         int    `json:"correct"`
	TotalPausedMs   int64  `json:"total_paused_ms"`
	SessionDuration string `json:"session_duration"`
	// Stats is the scorer's summary of the whole session, when it keeps one.
	Stats map[string]any `json:"stats,omitempty"`
}

// SessionResetPayload is the payload for a SessionReset event
type SessionResetPayload struct {
	PreviousStatus string `json:"previous_status"`
	RoundsPlayed   int    `json:"rounds_played"`
	Score          int    `json:"score"`
}
