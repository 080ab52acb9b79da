package games

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mcdev12/mindgames/go/internal/round"
)

// Prompt is what the player sees for one round.
type Prompt struct {
	Text      string   `json:"text,omitempty"`
	Image     string   `json:"image,omitempty"`
	Options   []string `json:"options,omitempty"`
	Hint      string   `json:"hint,omitempty"`
	Ambiguity string   `json:"ambiguity,omitempty"`
	Level     int      `json:"level,omitempty"`
	Pattern   []int    `json:"pattern,omitempty"`
	GridSize  int      `json:"grid_size,omitempty"`
	FlashMs   int64    `json:"flash_ms,omitempty"`
	GapMs     int64    `json:"gap_ms,omitempty"`
	Stimulus  string   `json:"stimulus,omitempty"`
}

// RiskScenario is the answer data for a risk round.
type RiskScenario struct {
	SafeReward   int
	RiskyReward  int
	RiskyPenalty int
	SuccessProb  float64
}

const (
	ChoiceSafe  = "safe"
	ChoiceRisky = "risky"

	StimulusGreen = "green"
	StimulusRed   = "red"
)

// Build turns a catalog entry into the configuration and scorer for one
// session. rng drives shuffling, pattern generation and risky outcomes and
// is not retained.
func (c *Catalog) Build(id string, rng *rand.Rand) (round.Config, round.Scorer, error) {
	g, err := c.Get(id)
	if err != nil {
		return round.Config{}, nil, err
	}

	cfg := round.Config{
		RoundDuration: g.RoundDuration,
		SettleDelay:   g.SettleDelay,
		AutoAdvance:   g.AutoAdvance,
		StopOnTimeout: g.StopOnTimeout,
		MaxAttempts:   g.MaxAttempts,
	}
	var scorer round.Scorer

	switch g.Kind {
	case KindChoice:
		for _, def := range pickRounds(g, rng) {
			options := def.Options
			if len(options) == 0 {
				options = g.Options
			}
			cfg.Rounds = append(cfg.Rounds, round.RoundSpec{
				Key:      def.Key,
				Duration: def.Duration,
				Prompt: Prompt{
					Text:      def.Prompt,
					Image:     def.Image,
					Options:   options,
					Hint:      def.Hint,
					Ambiguity: def.Ambiguity,
				},
				Answer: def.Answer,
			})
		}
		scorer = ChoiceScorer{Points: g.PointsCorrect, StopOnMiss: g.StopOnMiss}

	case KindRisk:
		for _, def := range pickRounds(g, rng) {
			cfg.Rounds = append(cfg.Rounds, round.RoundSpec{
				Key:      def.Key,
				Duration: def.Duration,
				Prompt:   Prompt{Text: def.Prompt, Options: []string{ChoiceSafe, ChoiceRisky}},
				Answer: RiskScenario{
					SafeReward:   def.SafeReward,
					RiskyReward:  def.RiskyReward,
					RiskyPenalty: def.RiskyPenalty,
					SuccessProb:  def.SuccessProb,
				},
			})
		}
		scorer = NewRiskScorer(rand.New(rand.NewSource(rng.Int63())))

	case KindRecall:
		r := g.Recall
		cells := r.GridSize * r.GridSize
		for level := 1; level <= r.Levels; level++ {
			length := r.StartLength + (level-1)*r.LengthStep
			pattern := rng.Perm(cells)[:length]
			cfg.Rounds = append(cfg.Rounds, round.RoundSpec{
				Key:      fmt.Sprintf("level-%d", level),
				Duration: r.RecallTime + time.Duration(length)*(r.Flash+r.Gap),
				Prompt: Prompt{
					Level:    level,
					Pattern:  pattern,
					GridSize: r.GridSize,
					FlashMs:  r.Flash.Milliseconds(),
					GapMs:    r.Gap.Milliseconds(),
				},
				Answer: pattern,
			})
		}
		scorer = NewRecallScorer(r.PointsPerCell, g.StopOnMiss, g.RetryOnMiss)

	case KindGoNoGo:
		gng := g.GoNoGo
		for i, lvl := range gng.Levels {
			// Red share matches the relative spawn rates of the two dot colors.
			redShare := float64(lvl.GreenInterval) / float64(lvl.GreenInterval+lvl.RedInterval)
			for trial := 1; trial <= gng.TrialsPerLevel; trial++ {
				stimulus := StimulusGreen
				if rng.Float64() < redShare {
					stimulus = StimulusRed
				}
				cfg.Rounds = append(cfg.Rounds, round.RoundSpec{
					Key:      fmt.Sprintf("level-%d-trial-%d", i+1, trial),
					Duration: lvl.GreenInterval,
					Prompt:   Prompt{Level: i + 1, Stimulus: stimulus},
					Answer:   stimulus,
				})
			}
		}
		scorer = GoNoGoScorer{Points: g.PointsCorrect, StopOnMiss: g.StopOnMiss}
	}

	if err := cfg.Validate(); err != nil {
		return round.Config{}, nil, fmt.Errorf("game %q: %w", id, err)
	}
	return cfg, scorer, nil
}

func pickRounds(g Game, rng *rand.Rand) []RoundDef {
	defs := make([]RoundDef, len(g.Rounds))
	copy(defs, g.Rounds)
	if g.Shuffle {
		rng.Shuffle(len(defs), func(i, j int) { defs[i], defs[j] = defs[j], defs[i] })
	}
	if g.MaxRounds > 0 && g.MaxRounds < len(defs) {
		defs = defs[:g.MaxRounds]
	}
	return defs
}
