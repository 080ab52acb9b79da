package telemetry

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// LinearBackOff waits Step, then 2*Step, then 3*Step, and so on.
type LinearBackOff struct {
	Step time.Duration
	n    int
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.Step * time.Duration(b.n)
}

func (b *LinearBackOff) Reset() { b.n = 0 }

// RetryOptions allows maxRetries retries after the first attempt, spaced by
// a linear backoff of step.
func RetryOptions(maxRetries int, step time.Duration) []backoff.RetryOption {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(&LinearBackOff{Step: step}),
		backoff.WithMaxTries(uint(maxRetries + 1)),
		backoff.WithMaxElapsedTime(0),
	}
}
