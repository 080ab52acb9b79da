package round

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig wraps every configuration error returned by NewSequencer.
var ErrInvalidConfig = errors.New("invalid round configuration")

type Config struct {
	Rounds        []RoundSpec
	RoundDuration time.Duration
	// SettleDelay is how long a committed or timed-out round is shown
	// before the sequencer advances.
	SettleDelay time.Duration
	// AutoAdvance starts the next round once the settle delay elapses.
	// Without it the sequencer waits in Idle for Start.
	AutoAdvance bool
	// StopOnTimeout ends the session on the first timed-out round.
	StopOnTimeout bool
	// MaxAttempts caps how often one round may be played when the scorer
	// asks for a repeat. Zero means no cap.
	MaxAttempts int
	// MinRemaining is the shortest deadline a resumed round gets.
	MinRemaining time.Duration
}

func (c Config) Validate() error {
	if len(c.Rounds) == 0 {
		return fmt.Errorf("%w: no rounds configured", ErrInvalidConfig)
	}
	for i, spec := range c.Rounds {
		if spec.Duration < 0 {
			return fmt.Errorf("%w: round %d has negative duration %s", ErrInvalidConfig, i+1, spec.Duration)
		}
		if c.durationFor(spec) <= 0 {
			return fmt.Errorf("%w: round %d has no positive duration", ErrInvalidConfig, i+1)
		}
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: negative settle delay %s", ErrInvalidConfig, c.SettleDelay)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative max attempts %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.MinRemaining < 0 {
		return fmt.Errorf("%w: negative minimum remaining time %s", ErrInvalidConfig, c.MinRemaining)
	}
	return nil
}

func (c Config) durationFor(spec RoundSpec) time.Duration {
	if spec.Duration > 0 {
		return spec.Duration
	}
	return c.RoundDuration
}
