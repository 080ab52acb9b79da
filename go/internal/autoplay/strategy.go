package autoplay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/mcdev12/mindgames/go/internal/games"
	"github.com/mcdev12/mindgames/go/internal/round"
)

// Strategy decides what to do with an active round. ok is false when the
// right move is to not act at all.
type Strategy interface {
	Choose(ctx context.Context, snap round.Snapshot) (action any, ok bool, err error)
}

// RandomStrategy plays legal but random moves. Recall patterns are
// repeated correctly unless the strategy decides to slip.
type RandomStrategy struct {
	rng *rand.Rand
	// SlipRate is the chance of fumbling a recall pattern or tapping on red.
	SlipRate float64
}

// NewRandomStrategy constructs a RandomStrategy with its own seed.
func NewRandomStrategy() *RandomStrategy {
	src := rand.NewSource(time.Now().UnixNano())
	return &RandomStrategy{rng: rand.New(src), SlipRate: 0.1}
}

func NewSeededStrategy(seed int64, slipRate float64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed)), SlipRate: slipRate}
}

func (s *RandomStrategy) Choose(_ context.Context, snap round.Snapshot) (any, bool, error) {
	prompt, err := decodePrompt(snap.Prompt)
	if err != nil {
		return nil, false, err
	}
	slip := s.rng.Float64() < s.SlipRate

	switch {
	case len(prompt.Pattern) > 0:
		cells := append([]int(nil), prompt.Pattern...)
		if slip {
			cells = cells[:len(cells)-1]
		}
		return cells, true, nil
	case prompt.Stimulus == games.StimulusGreen:
		return "tap", true, nil
	case prompt.Stimulus == games.StimulusRed:
		return "tap", slip, nil
	case len(prompt.Options) > 0:
		return prompt.Options[s.rng.Intn(len(prompt.Options))], true, nil
	default:
		if s.rng.Intn(2) == 0 {
			return games.ChoiceSafe, true, nil
		}
		return games.ChoiceRisky, true, nil
	}
}

// decodePrompt accepts a games.Prompt or its JSON-decoded map form.
func decodePrompt(raw any) (games.Prompt, error) {
	switch p := raw.(type) {
	case nil:
		return games.Prompt{}, nil
	case games.Prompt:
		return p, nil
	case *games.Prompt:
		return *p, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return games.Prompt{}, fmt.Errorf("encode prompt: %w", err)
	}
	var out games.Prompt
	if err := json.Unmarshal(data, &out); err != nil {
		return games.Prompt{}, fmt.Errorf("decode prompt: %w", err)
	}
	return out, nil
}
