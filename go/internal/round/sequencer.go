package round

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

// Sequencer drives a fixed list of timed rounds through
// Idle -> Active -> (Paused <-> Active) -> Committed|TimedOut -> Idle|Finished.
//
// Every transition, whether it comes from a caller or from a clock timer,
// runs under one mutex, so transitions are totally ordered. Each scheduled
// timer carries the generation it was armed in; pausing, committing and
// resetting bump the generation, and a timer that fires for an older
// generation is ignored.
//
// Invalid calls are no-ops and report false.
type Sequencer struct {
	cfg       Config
	clock     Clock
	wall      func() time.Time
	sink      telemetry.Sink
	scorer    Scorer
	presenter Presenter
	gameID    string
	playerID  string

	mu       sync.Mutex
	state    State
	session  *Session
	next     int // index into cfg.Rounds of the next round to start
	pausedAt time.Time
	version  uint64
	gen      uint64
	timer    clockwork.Timer
	cancelCh chan struct{}
}

type Option func(*Sequencer)

func WithClock(c Clock) Option { return func(s *Sequencer) { s.clock = c } }

// WithWallClock sets the time source for telemetry timestamps.
func WithWallClock(now func() time.Time) Option { return func(s *Sequencer) { s.wall = now } }

func WithSink(sink telemetry.Sink) Option { return func(s *Sequencer) { s.sink = sink } }

func WithScorer(scorer Scorer) Option { return func(s *Sequencer) { s.scorer = scorer } }

func WithPresenter(p Presenter) Option { return func(s *Sequencer) { s.presenter = p } }

// WithLabels tags every emitted event with a game and player.
func WithLabels(gameID, playerID string) Option {
	return func(s *Sequencer) {
		s.gameID = gameID
		s.playerID = playerID
	}
}

// NewSequencer validates cfg and returns an Idle sequencer holding a fresh,
// empty session.
func NewSequencer(cfg Config, opts ...Option) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinRemaining == 0 {
		cfg.MinRemaining = DefaultTick
	}
	rounds := make([]RoundSpec, len(cfg.Rounds))
	copy(rounds, cfg.Rounds)
	cfg.Rounds = rounds

	s := &Sequencer{
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		wall:      func() time.Time { return time.Now().UTC() },
		sink:      telemetry.Discard,
		scorer:    Unscored,
		presenter: noPresenter,
		state:     StateIdle,
		session:   newSession(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start activates the next round. Only valid in Idle.
func (s *Sequencer) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return false
	}
	return s.startLocked()
}

// Commit records action as the active round's answer. Only the first
// commit of a round is accepted; commits outside Active are ignored.
func (s *Sequencer) Commit(action any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(action)
}

// commitRound commits only if round index of session id is still active.
func (s *Sequencer) commitRound(sessionID uuid.UUID, index int, action any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.currentLocked()
	if r == nil || s.session.ID != sessionID || r.Index != index {
		return false
	}
	return s.commitLocked(action)
}

// Pause freezes the active round's remaining time.
func (s *Sequencer) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	now := s.clock.Now()
	r := s.currentLocked()
	if !now.Before(r.Deadline) {
		// The deadline passed before its timer was delivered.
		s.expireLocked()
		return false
	}

	s.cancelTimerLocked()
	s.pausedAt = now
	s.state = StatePaused

	s.emit(r.Index, telemetry.EventTypeRoundPaused, telemetry.RoundPausedPayload{
		RemainingMs: r.Deadline.Sub(now).Milliseconds(),
	})
	s.presentLocked()
	return true
}

// Resume re-arms the deadline with the time that was left when the round
// was paused, never less than Config.MinRemaining.
func (s *Sequencer) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return false
	}
	now := s.clock.Now()
	r := s.currentLocked()

	remaining := r.Deadline.Sub(s.pausedAt)
	if remaining < s.cfg.MinRemaining {
		remaining = s.cfg.MinRemaining
	}
	paused := now.Sub(s.pausedAt)
	r.PausedFor += paused
	s.session.PausedAccumulated += paused
	r.Deadline = now.Add(remaining)
	s.pausedAt = time.Time{}
	s.state = StateActive
	s.scheduleLocked(remaining, s.expireLocked)

	s.emit(r.Index, telemetry.EventTypeRoundResumed, telemetry.RoundResumedPayload{
		RemainingMs: remaining.Milliseconds(),
		PausedMs:    paused.Milliseconds(),
	})
	s.presentLocked()
	return true
}

// Reset cancels every pending timer and returns to Idle with a fresh,
// empty session. It is valid in every state.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	if ss, ok := s.scorer.(SessionScorer); ok {
		ss.ResetSession()
	}
	if len(s.session.Rounds) > 0 {
		s.emit(0, telemetry.EventTypeSessionReset, telemetry.SessionResetPayload{
			PreviousStatus: string(s.state),
			RoundsPlayed:   len(s.session.Rounds),
			Score:          s.session.Score,
		})
	}

	log.Debug().
		Str("session_id", s.session.ID.String()).
		Str("state", string(s.state)).
		Msg("sequencer reset")

	s.session = newSession()
	s.next = 0
	s.pausedAt = time.Time{}
	s.state = StateIdle
	s.presentLocked()
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Session returns a copy of the current session.
func (s *Sequencer) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.clone()
}

// activeRound reports the session and 1-based index of the active round.
func (s *Sequencer) activeRound() (uuid.UUID, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return uuid.Nil, 0, false
	}
	return s.session.ID, s.currentLocked().Index, true
}

func (s *Sequencer) startLocked() bool {
	if s.next >= len(s.cfg.Rounds) {
		return false
	}
	now := s.clock.Now()

	if len(s.session.Rounds) == 0 {
		s.session.StartedAt = s.wall()
		s.emit(0, telemetry.EventTypeSessionStarted, telemetry.SessionStartedPayload{
			TotalRounds: len(s.cfg.Rounds),
			AutoAdvance: s.cfg.AutoAdvance,
		})
	}

	spec := s.cfg.Rounds[s.next]
	duration := s.cfg.durationFor(spec)
	s.session.Rounds = append(s.session.Rounds, Round{
		Index:    len(s.session.Rounds) + 1,
		Position: s.next + 1,
		Attempt:  s.attemptsLocked(s.next+1) + 1,
		Key:      spec.Key,
		Status:   StatusPending,
		Duration: duration,
	})
	s.next++
	s.session.Cursor = len(s.session.Rounds) - 1

	r := s.currentLocked()
	r.Status = StatusActive
	r.ActivatedAt = now
	r.Deadline = now.Add(duration)
	s.state = StateActive
	s.scheduleLocked(duration, s.expireLocked)

	s.emit(r.Index, telemetry.EventTypeRoundStarted, telemetry.RoundStartedPayload{
		RoundKey:            r.Key,
		Position:            r.Position,
		Attempt:             r.Attempt,
		ScheduledDurationMs: duration.Milliseconds(),
		TotalRounds:         len(s.cfg.Rounds),
	})
	s.presentLocked()
	return true
}

func (s *Sequencer) commitLocked(action any) bool {
	if s.state != StateActive {
		return false
	}
	now := s.clock.Now()
	r := s.currentLocked()
	if !now.Before(r.Deadline) {
		s.expireLocked()
		return false
	}

	reaction := now.Sub(r.ActivatedAt) - r.PausedFor
	outcome := s.scorer.Score(s.cfg.Rounds[r.Position-1], action, reaction)

	s.cancelTimerLocked()
	r.Status = StatusCommitted
	r.CommittedAt = &now
	r.Action = action
	r.ReactionTime = reaction
	r.Outcome = &outcome
	s.session.Score += outcome.Points
	s.session.Committed++
	if outcome.Correct != nil && *outcome.Correct {
		s.session.Correct++
	}
	s.state = StateCommitted

	s.emit(r.Index, telemetry.EventTypeActionCommitted, telemetry.RoundOutcomePayload{
		RoundKey:       r.Key,
		Action:         action,
		ReactionTimeMs: reaction.Milliseconds(),
		PausedMs:       r.PausedFor.Milliseconds(),
		Correct:        outcome.Correct,
		Points:         outcome.Points,
		ScoreAfter:     s.session.Score,
		Repeat:         outcome.Repeat && !outcome.EndSession && s.canRepeatLocked(r),
		Detail:         outcome.Detail,
	})
	s.settleLocked(outcome.EndSession, EndReasonOutcome)
	return true
}

// expireLocked times out the active round once its deadline has passed.
func (s *Sequencer) expireLocked() {
	if s.state != StateActive {
		return
	}
	now := s.clock.Now()
	r := s.currentLocked()
	if now.Before(r.Deadline) {
		s.scheduleLocked(r.Deadline.Sub(now), s.expireLocked)
		return
	}

	s.cancelTimerLocked()
	r.Status = StatusTimedOut
	r.ReactionTime = r.Duration
	r.Outcome = &Outcome{}
	s.session.TimedOut++
	s.state = StateTimedOut

	s.emit(r.Index, telemetry.EventTypeRoundTimedOut, telemetry.RoundOutcomePayload{
		RoundKey:       r.Key,
		ReactionTimeMs: r.Duration.Milliseconds(),
		PausedMs:       r.PausedFor.Milliseconds(),
		ScoreAfter:     s.session.Score,
		TimedOut:       true,
	})
	s.settleLocked(s.cfg.StopOnTimeout, EndReasonTimeout)
}

// settleLocked shows the finished round for the settle delay, then advances.
func (s *Sequencer) settleLocked(end bool, reason string) {
	s.presentLocked()
	if s.cfg.SettleDelay <= 0 {
		s.advanceLocked(end, reason)
		return
	}
	s.scheduleLocked(s.cfg.SettleDelay, func() { s.advanceLocked(end, reason) })
}

func (s *Sequencer) advanceLocked(end bool, reason string) {
	if s.state != StateCommitted && s.state != StateTimedOut {
		return
	}
	if r := s.currentLocked(); !end && r != nil && r.Outcome != nil && r.Outcome.Repeat && s.canRepeatLocked(r) {
		s.next = r.Position - 1
	}
	s.session.Cursor = -1
	if !end && s.next >= len(s.cfg.Rounds) {
		end, reason = true, EndReasonCompleted
	}
	if end {
		s.finishLocked(reason)
		return
	}

	s.state = StateIdle
	if s.cfg.AutoAdvance {
		s.startLocked()
		return
	}
	s.presentLocked()
}

func (s *Sequencer) finishLocked(reason string) {
	s.state = StateFinished
	s.session.EndedAt = s.wall()
	s.session.EndReason = reason

	var stats map[string]any
	if ss, ok := s.scorer.(SessionScorer); ok {
		stats = ss.Stats()
	}
	s.emit(0, telemetry.EventTypeSessionEnded, telemetry.SessionEndedPayload{
		Reason:          reason,
		Score:           s.session.Score,
		RoundsPlayed:    len(s.session.Rounds),
		TotalRounds:     len(s.cfg.Rounds),
		Committed:       s.session.Committed,
		TimedOut:        s.session.TimedOut,
		Correct:         s.session.Correct,
		TotalPausedMs:   s.session.PausedAccumulated.Milliseconds(),
		SessionDuration: s.session.EndedAt.Sub(s.session.StartedAt).String(),
		Stats:           stats,
	})

	log.Info().
		Str("session_id", s.session.ID.String()).
		Str("game_id", s.gameID).
		Str("reason", reason).
		Int("score", s.session.Score).
		Int("rounds", len(s.session.Rounds)).
		Msg("session finished")

	s.presentLocked()
}

// scheduleLocked arms the single sequencer timer, replacing any pending one.
func (s *Sequencer) scheduleLocked(d time.Duration, fn func()) {
	s.cancelTimerLocked()
	gen := s.gen
	timer := s.clock.NewTimer(d)
	done := make(chan struct{})
	s.timer = timer
	s.cancelCh = done

	go func() {
		select {
		case <-timer.Chan():
			s.fire(gen, fn)
		case <-done:
		}
	}()
}

func (s *Sequencer) fire(gen uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		log.Debug().Str("session_id", s.session.ID.String()).Msg("ignoring stale timer")
		return
	}
	s.timer = nil
	s.cancelCh = nil
	fn()
}

// cancelTimerLocked stops the pending timer, if any, and invalidates every
// timer armed so far.
func (s *Sequencer) cancelTimerLocked() {
	if s.timer != nil {
		stopAndDrainTimer(s.timer)
		close(s.cancelCh)
		s.timer = nil
		s.cancelCh = nil
	}
	s.gen++
}

// attemptsLocked counts how often the round at position has been played.
func (s *Sequencer) attemptsLocked(position int) int {
	n := 0
	for _, r := range s.session.Rounds {
		if r.Position == position {
			n++
		}
	}
	return n
}

func (s *Sequencer) canRepeatLocked(r *Round) bool {
	return s.cfg.MaxAttempts == 0 || r.Attempt < s.cfg.MaxAttempts
}

func (s *Sequencer) currentLocked() *Round {
	if s.session.Cursor < 0 || s.session.Cursor >= len(s.session.Rounds) {
		return nil
	}
	return &s.session.Rounds[s.session.Cursor]
}

func (s *Sequencer) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:   s.session.ID,
		Version:     s.version,
		Status:      s.state,
		TotalRounds: len(s.cfg.Rounds),
		Score:       s.session.Score,
	}
	if n := len(s.session.Rounds); n > 0 {
		last := s.session.Rounds[n-1]
		snap.RoundIndex = last.Index
		snap.Position = last.Position
		if last.Attempt > 1 {
			snap.Attempt = last.Attempt
		}
		snap.LastOutcome = last.Outcome
	}

	switch s.state {
	case StateActive:
		r := s.currentLocked()
		snap.RemainingMs = max(r.Deadline.Sub(s.clock.Now()), 0).Milliseconds()
		snap.Prompt = s.cfg.Rounds[r.Position-1].Prompt
		snap.LastOutcome = nil
	case StatePaused:
		r := s.currentLocked()
		snap.RemainingMs = r.Deadline.Sub(s.pausedAt).Milliseconds()
		snap.Prompt = s.cfg.Rounds[r.Position-1].Prompt
		snap.LastOutcome = nil
	}
	return snap
}

func (s *Sequencer) presentLocked() {
	s.version++
	s.presenter.Present(s.snapshotLocked())
}

func (s *Sequencer) emit(roundIndex int, eventType telemetry.EventType, payload any) {
	ev, err := telemetry.NewEvent(s.session.ID, roundIndex, eventType, payload)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", s.session.ID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to build telemetry event")
		return
	}
	ev.Timestamp = s.wall()
	ev.GameID = s.gameID
	ev.PlayerID = s.playerID
	s.sink.Record(ev)
}

func (s *Sequencer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("sequencer(session=%s state=%s round=%d/%d)", s.session.ID, s.state, s.next, len(s.cfg.Rounds))
}
