package round

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Input is a raw user action. Round is the 1-based round the player was
// looking at when acting; zero targets whichever round is active.
type Input struct {
	Round int `json:"round,omitempty"`
	Value any `json:"value"`
}

type gateKey struct {
	session uuid.UUID
	round   int
}

// Gate forwards at most one input per round to its sequencer. After an
// input is accepted the gate stays closed until a different round is
// active.
type Gate struct {
	seq *Sequencer

	mu     sync.Mutex
	closed gateKey
}

func NewGate(seq *Sequencer) *Gate {
	return &Gate{seq: seq}
}

// Submit reports whether the input was committed.
func (g *Gate) Submit(in Input) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sessionID, index, ok := g.seq.activeRound()
	if !ok {
		log.Debug().Msg("input discarded: no active round")
		return false
	}
	key := gateKey{session: sessionID, round: index}
	if g.closed == key {
		log.Debug().Int("round", index).Msg("input discarded: gate closed")
		return false
	}
	if in.Round != 0 && in.Round != index {
		log.Debug().
			Int("round", index).
			Int("target_round", in.Round).
			Msg("input discarded: aimed at another round")
		return false
	}
	if !g.seq.commitRound(sessionID, index, in.Value) {
		return false
	}
	g.closed = key
	return true
}

// Open reports whether the next Submit could be forwarded.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	sessionID, index, ok := g.seq.activeRound()
	return ok && g.closed != gateKey{session: sessionID, round: index}
}
