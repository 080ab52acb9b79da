package round

import "time"

// Scorer judges a committed action. It runs inside the transition and must
// not block.
type Scorer interface {
	Score(spec RoundSpec, action any, reactionTime time.Duration) Outcome
}

type ScorerFunc func(spec RoundSpec, action any, reactionTime time.Duration) Outcome

func (f ScorerFunc) Score(spec RoundSpec, action any, reactionTime time.Duration) Outcome {
	return f(spec, action, reactionTime)
}

// SessionScorer is a Scorer that keeps state across the rounds of a
// session, such as streaks or error counts.
type SessionScorer interface {
	Scorer
	// Stats is attached to the SessionEnded event.
	Stats() map[string]any
	// ResetSession forgets everything scored so far.
	ResetSession()
}

// Unscored awards nothing and leaves correctness unset.
var Unscored Scorer = ScorerFunc(func(RoundSpec, any, time.Duration) Outcome { return Outcome{} })

// Bool returns a pointer to b, for Outcome.Correct.
func Bool(b bool) *bool { return &b }
