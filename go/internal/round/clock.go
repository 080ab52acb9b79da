package round

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the monotonic time source deadlines are computed on.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// DefaultTick is the smallest remaining time a resumed round is given.
const DefaultTick = time.Millisecond

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
