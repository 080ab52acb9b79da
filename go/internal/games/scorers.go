package games

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/mindgames/go/internal/round"
)

// ChoiceScorer awards Points when the chosen option matches the round's
// answer, ignoring case.
type ChoiceScorer struct {
	Points     int
	StopOnMiss bool
}

func (s ChoiceScorer) Score(spec round.RoundSpec, action any, _ time.Duration) round.Outcome {
	answer, _ := spec.Answer.(string)
	choice, ok := choiceOf(action)
	correct := ok && strings.EqualFold(choice, answer)

	out := round.Outcome{
		Correct: round.Bool(correct),
		Detail:  map[string]any{"choice": choice, "expected": answer},
	}
	if correct {
		out.Points = s.Points
	} else if s.StopOnMiss {
		out.EndSession = true
	}
	return out
}

// RiskScorer resolves a safe or risky choice. A risky choice rolls against
// the scenario's success probability. There is no correct answer.
//
// It keeps the player's choice history for the session: the previous choice
// and the current run of risky wins or losses are attached to every outcome,
// and the totals are reported when the session ends.
type RiskScorer struct {
	mu  sync.Mutex
	rng *rand.Rand

	previous    string
	riskyWins   int
	riskyLosses int
	totalRisky  int
	totalSafe   int
}

func NewRiskScorer(rng *rand.Rand) *RiskScorer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RiskScorer{rng: rng}
}

func (s *RiskScorer) Score(spec round.RoundSpec, action any, _ time.Duration) round.Outcome {
	scenario, _ := spec.Answer.(RiskScenario)
	choice, _ := choiceOf(action)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out round.Outcome
	switch choice = strings.ToLower(choice); choice {
	case ChoiceSafe:
		s.totalSafe++
		out = round.Outcome{
			Points: scenario.SafeReward,
			Detail: map[string]any{"choice": ChoiceSafe, "result": "safe"},
		}
	case ChoiceRisky:
		s.totalRisky++
		if s.rng.Float64() < scenario.SuccessProb {
			s.riskyWins++
			s.riskyLosses = 0
			out = round.Outcome{
				Points: scenario.RiskyReward,
				Detail: map[string]any{"choice": ChoiceRisky, "result": "won"},
			}
		} else {
			s.riskyLosses++
			s.riskyWins = 0
			out = round.Outcome{
				Points: -scenario.RiskyPenalty,
				Detail: map[string]any{"choice": ChoiceRisky, "result": "lost"},
			}
		}
	default:
		return round.Outcome{Detail: map[string]any{"choice": choice, "result": "invalid"}}
	}

	out.Detail["previous_choice"] = s.previous
	out.Detail["streak_risky_wins"] = s.riskyWins
	out.Detail["streak_risky_losses"] = s.riskyLosses
	s.previous = choice
	return out
}

func (s *RiskScorer) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"total_risky_choices": s.totalRisky,
		"total_safe_choices":  s.totalSafe,
		"streak_risky_wins":   s.riskyWins,
		"streak_risky_losses": s.riskyLosses,
	}
}

func (s *RiskScorer) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = ""
	s.riskyWins, s.riskyLosses = 0, 0
	s.totalRisky, s.totalSafe = 0, 0
}

// Recall error types. A wrong cell before the pattern is complete is an
// IncorrectCell; clicking on past the end of a correct pattern is
// Perseveration; stopping short with no wrong cell is Incomplete.
const (
	RecallErrorIncorrectCell = "IncorrectCell"
	RecallErrorPerseveration = "Perseveration"
	RecallErrorIncomplete    = "Incomplete"
)

// RecallScorer checks a recalled cell sequence against the flashed pattern.
// A miss either ends the session (StopOnMiss) or replays the level
// (RetryOnMiss). It counts clicks and errors across the session.
type RecallScorer struct {
	PointsPerCell int
	StopOnMiss    bool
	RetryOnMiss   bool

	mu        sync.Mutex
	attempts  int
	completed int
	clicks    int
	errors    map[string]int
}

func NewRecallScorer(pointsPerCell int, stopOnMiss, retryOnMiss bool) *RecallScorer {
	return &RecallScorer{PointsPerCell: pointsPerCell, StopOnMiss: stopOnMiss, RetryOnMiss: retryOnMiss}
}

func (s *RecallScorer) Score(spec round.RoundSpec, action any, _ time.Duration) round.Outcome {
	pattern, _ := spec.Answer.([]int)
	cells, _ := cellsOf(action)
	clicks := len(cells)
	if n, ok := clicksOf(action); ok {
		clicks = n
	}

	matched := 0
	for matched < len(pattern) && matched < len(cells) && cells[matched] == pattern[matched] {
		matched++
	}
	correct := matched == len(pattern) && len(cells) == len(pattern)

	detail := map[string]any{
		"matched": matched,
		"length":  len(pattern),
		"clicks":  clicks,
	}
	errs := 0
	if !correct {
		errs = 1
		switch {
		case matched < len(cells) && matched < len(pattern):
			detail["error_type"] = RecallErrorIncorrectCell
			detail["click_order"] = matched + 1
			detail["clicked_cell"] = cells[matched]
			detail["expected_cell"] = pattern[matched]
		case len(cells) > len(pattern):
			detail["error_type"] = RecallErrorPerseveration
			detail["click_order"] = len(pattern) + 1
			detail["clicked_cell"] = cells[len(pattern)]
		default:
			detail["error_type"] = RecallErrorIncomplete
		}
	}
	detail["errors"] = errs
	if len(pattern) > 0 {
		detail["error_rate"] = float64(errs) / float64(len(pattern))
	}

	s.mu.Lock()
	if s.errors == nil {
		s.errors = make(map[string]int)
	}
	s.attempts++
	s.clicks += clicks
	if correct {
		s.completed++
	} else {
		s.errors[detail["error_type"].(string)]++
	}
	s.mu.Unlock()

	out := round.Outcome{Correct: round.Bool(correct), Detail: detail}
	switch {
	case correct:
		out.Points = len(pattern) * s.PointsPerCell
	case s.StopOnMiss:
		out.EndSession = true
	case s.RetryOnMiss:
		out.Repeat = true
	}
	return out
}

func (s *RecallScorer) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	misses := 0
	for _, n := range s.errors {
		misses += n
	}
	return map[string]any{
		"attempts":         s.attempts,
		"levels_completed": s.completed,
		"misses":           misses,
		"total_clicks":     s.clicks,
		"incorrect_cell":   s.errors[RecallErrorIncorrectCell],
		"perseveration":    s.errors[RecallErrorPerseveration],
		"incomplete":       s.errors[RecallErrorIncomplete],
	}
}

func (s *RecallScorer) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts, s.completed, s.clicks = 0, 0, 0
	s.errors = nil
}

// GoNoGoScorer treats any committed action as a response. Responding to a
// green stimulus scores; responding to a red one is a miss.
type GoNoGoScorer struct {
	Points     int
	StopOnMiss bool
}

func (s GoNoGoScorer) Score(spec round.RoundSpec, _ any, _ time.Duration) round.Outcome {
	stimulus, _ := spec.Answer.(string)
	if stimulus == StimulusRed {
		return round.Outcome{
			Correct:    round.Bool(false),
			EndSession: s.StopOnMiss,
			Detail:     map[string]any{"stimulus": stimulus},
		}
	}
	return round.Outcome{
		Points:  s.Points,
		Correct: round.Bool(true),
		Detail:  map[string]any{"stimulus": stimulus},
	}
}

// choiceOf accepts a bare string or a {"choice": "..."} object as decoded
// from JSON.
func choiceOf(action any) (string, bool) {
	switch v := action.(type) {
	case string:
		return strings.TrimSpace(v), true
	case map[string]any:
		s, ok := v["choice"].(string)
		return strings.TrimSpace(s), ok
	default:
		return "", false
	}
}

// clicksOf reads an explicit click count from a {"cells": [...], "clicks": n}
// object, for clients that report clicks the cell list does not show.
func clicksOf(action any) (int, bool) {
	m, ok := action.(map[string]any)
	if !ok {
		return 0, false
	}
	switch n := m["clicks"].(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// cellsOf accepts []int, a JSON-decoded array of numbers, or a
// {"cells": [...]} object.
func cellsOf(action any) ([]int, bool) {
	switch v := action.(type) {
	case []int:
		return v, true
	case []any:
		out := make([]int, 0, len(v))
		for _, x := range v {
			switch n := x.(type) {
			case float64:
				out = append(out, int(n))
			case int:
				out = append(out, n)
			default:
				return nil, false
			}
		}
		return out, true
	case map[string]any:
		return cellsOf(v["cells"])
	default:
		return nil, false
	}
}
