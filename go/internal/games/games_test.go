package games

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/mindgames/go/internal/round"
)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	return c
}

func TestDefaultCatalogListsEveryGame(t *testing.T) {
	c := mustCatalog(t)
	want := []string{"defuse", "emotion-catcher", "impulse", "memory-maze", "risk-safe"}
	got := c.List()
	if len(got) != len(want) {
		t.Fatalf("got %d games, want %d", len(got), len(want))
	}
	for i, g := range got {
		if g.ID != want[i] {
			t.Errorf("game %d = %q, want %q", i, g.ID, want[i])
		}
	}

	if _, err := c.Get("tetris"); !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("Get(tetris) err = %v, want ErrUnknownGame", err)
	}
	if _, _, err := c.Build("tetris", rand.New(rand.NewSource(1))); !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("Build(tetris) err = %v, want ErrUnknownGame", err)
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":     "games: []",
		"duplicate": "games:\n  - {id: a, kind: choice, rounds: [{key: x}]}\n  - {id: a, kind: choice, rounds: [{key: y}]}",
		"kind":      "games:\n  - {id: a, kind: trivia, rounds: [{key: x}]}",
		"no rounds": "games:\n  - {id: a, kind: risk}",
		"grid":      "games:\n  - {id: a, kind: recall, recall: {grid_size: 2, levels: 3, start_length: 3, length_step: 1}}",
		"miss mode": "games:\n  - {id: a, kind: choice, stop_on_miss: true, retry_on_miss: true, rounds: [{key: x}]}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestBuildEveryGame(t *testing.T) {
	c := mustCatalog(t)
	cases := []struct {
		id     string
		rounds int
	}{
		{"risk-safe", 7},
		{"emotion-catcher", 10},
		{"defuse", 5},
		{"memory-maze", 4},
		{"impulse", 30},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			cfg, scorer, err := c.Build(tc.id, rand.New(rand.NewSource(7)))
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if len(cfg.Rounds) != tc.rounds {
				t.Fatalf("got %d rounds, want %d", len(cfg.Rounds), tc.rounds)
			}
			if scorer == nil {
				t.Fatal("nil scorer")
			}
			if _, err := round.NewSequencer(cfg, round.WithScorer(scorer)); err != nil {
				t.Fatalf("NewSequencer: %v", err)
			}
		})
	}
}

func TestBuildIsDeterministicForASeed(t *testing.T) {
	c := mustCatalog(t)
	a, _, _ := c.Build("defuse", rand.New(rand.NewSource(42)))
	b, _, _ := c.Build("defuse", rand.New(rand.NewSource(42)))
	for i := range a.Rounds {
		if a.Rounds[i].Key != b.Rounds[i].Key {
			t.Fatalf("round %d: %q vs %q", i, a.Rounds[i].Key, b.Rounds[i].Key)
		}
	}
}

func TestMemoryMazePatterns(t *testing.T) {
	c := mustCatalog(t)
	cfg, _, err := c.Build("memory-maze", rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, spec := range cfg.Rounds {
		pattern := spec.Answer.([]int)
		if len(pattern) != 3+i {
			t.Fatalf("level %d pattern length %d, want %d", i+1, len(pattern), 3+i)
		}
		seen := map[int]bool{}
		for _, cell := range pattern {
			if cell < 0 || cell >= 16 || seen[cell] {
				t.Fatalf("level %d has bad or repeated cell %d in %v", i+1, cell, pattern)
			}
			seen[cell] = true
		}
		want := 10*time.Second + time.Duration(len(pattern))*1200*time.Millisecond
		if spec.Duration != want {
			t.Fatalf("level %d duration %v, want %v", i+1, spec.Duration, want)
		}
	}
}

func TestChoiceScorer(t *testing.T) {
	spec := round.RoundSpec{Answer: "green"}
	s := ChoiceScorer{Points: 1, StopOnMiss: true}

	hit := s.Score(spec, map[string]any{"choice": "Green"}, time.Second)
	if hit.Points != 1 || hit.Correct == nil || !*hit.Correct || hit.EndSession {
		t.Fatalf("hit = %+v", hit)
	}
	miss := s.Score(spec, "red", time.Second)
	if miss.Points != 0 || *miss.Correct || !miss.EndSession {
		t.Fatalf("miss = %+v", miss)
	}
	if junk := s.Score(spec, 12, time.Second); *junk.Correct {
		t.Fatalf("non-string action judged correct")
	}
}

func TestRiskScorer(t *testing.T) {
	sure := round.RoundSpec{Answer: RiskScenario{SafeReward: 100, RiskyReward: 400, RiskyPenalty: 50, SuccessProb: 1}}
	never := round.RoundSpec{Answer: RiskScenario{SafeReward: 100, RiskyReward: 400, RiskyPenalty: 50, SuccessProb: 0}}
	s := NewRiskScorer(rand.New(rand.NewSource(1)))

	if out := s.Score(sure, "safe", 0); out.Points != 100 || out.Correct != nil {
		t.Fatalf("safe = %+v", out)
	}
	if out := s.Score(sure, "RISKY", 0); out.Points != 400 {
		t.Fatalf("certain win = %+v", out)
	}
	if out := s.Score(never, map[string]any{"choice": "risky"}, 0); out.Points != -50 {
		t.Fatalf("certain loss = %+v", out)
	}
	if out := s.Score(sure, "maybe", 0); out.Points != 0 || out.Detail["result"] != "invalid" {
		t.Fatalf("invalid = %+v", out)
	}
}

func TestRiskScorerTracksStreaks(t *testing.T) {
	win := round.RoundSpec{Answer: RiskScenario{RiskyReward: 10, SuccessProb: 1}}
	lose := round.RoundSpec{Answer: RiskScenario{RiskyPenalty: 10, SuccessProb: 0}}
	s := NewRiskScorer(rand.New(rand.NewSource(1)))

	steps := []struct {
		spec     round.RoundSpec
		choice   string
		previous string
		wins     int
		losses   int
	}{
		{win, "risky", "", 1, 0},
		{win, "risky", "risky", 2, 0},
		{win, "safe", "risky", 2, 0},
		{lose, "risky", "safe", 0, 1},
		{lose, "risky", "risky", 0, 2},
		{win, "risky", "risky", 1, 0},
	}
	for i, st := range steps {
		out := s.Score(st.spec, st.choice, 0)
		if out.Detail["previous_choice"] != st.previous {
			t.Errorf("step %d previous = %v, want %q", i, out.Detail["previous_choice"], st.previous)
		}
		if out.Detail["streak_risky_wins"] != st.wins || out.Detail["streak_risky_losses"] != st.losses {
			t.Errorf("step %d streaks = %v/%v, want %d/%d", i,
				out.Detail["streak_risky_wins"], out.Detail["streak_risky_losses"], st.wins, st.losses)
		}
	}

	// Invalid choices leave the history alone.
	s.Score(win, "maybe", 0)
	stats := s.Stats()
	if stats["total_risky_choices"] != 5 || stats["total_safe_choices"] != 1 {
		t.Fatalf("stats = %v", stats)
	}

	s.ResetSession()
	out := s.Score(win, "safe", 0)
	if out.Detail["previous_choice"] != "" || s.Stats()["total_safe_choices"] != 1 {
		t.Fatalf("after reset: detail %v, stats %v", out.Detail, s.Stats())
	}
}

func TestRecallScorer(t *testing.T) {
	spec := round.RoundSpec{Answer: []int{4, 9, 1}}
	s := NewRecallScorer(10, true, false)

	if out := s.Score(spec, []any{4.0, 9.0, 1.0}, 0); out.Points != 30 || !*out.Correct || out.Detail["errors"] != 0 {
		t.Fatalf("exact = %+v", out)
	}
	out := s.Score(spec, map[string]any{"cells": []any{4.0, 1.0}}, 0)
	if *out.Correct || !out.EndSession || out.Repeat || out.Detail["matched"] != 1 {
		t.Fatalf("partial = %+v", out)
	}
	if out := s.Score(spec, []int{4, 9, 1, 2}, 0); *out.Correct {
		t.Fatalf("overlong sequence judged correct")
	}
}

func TestRecallScorerClassifiesErrors(t *testing.T) {
	spec := round.RoundSpec{Answer: []int{4, 9, 1}}
	s := NewRecallScorer(10, false, true)

	cases := []struct {
		name      string
		action    any
		errorType string
		clicks    int
	}{
		{"wrong cell", []int{4, 7}, RecallErrorIncorrectCell, 2},
		{"extra click", []int{4, 9, 1, 1}, RecallErrorPerseveration, 4},
		{"stopped short", []int{4}, RecallErrorIncomplete, 1},
		{"reported clicks", map[string]any{"cells": []any{4.0, 2.0}, "clicks": 5.0}, RecallErrorIncorrectCell, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := s.Score(spec, tc.action, 0)
			if *out.Correct || out.EndSession || !out.Repeat {
				t.Fatalf("outcome = %+v, want a repeat", out)
			}
			if out.Detail["error_type"] != tc.errorType || out.Detail["clicks"] != tc.clicks {
				t.Fatalf("detail = %v", out.Detail)
			}
			if out.Detail["errors"] != 1 || out.Detail["error_rate"] != 1.0/3 {
				t.Fatalf("error counts = %v", out.Detail)
			}
		})
	}

	wrong := s.Score(spec, []int{4, 7}, 0)
	if wrong.Detail["click_order"] != 2 || wrong.Detail["clicked_cell"] != 7 || wrong.Detail["expected_cell"] != 9 {
		t.Fatalf("first error = %v", wrong.Detail)
	}
	s.Score(spec, []int{4, 9, 1}, 0)

	stats := s.Stats()
	want := map[string]int{
		"attempts":         6,
		"levels_completed": 1,
		"misses":           5,
		"total_clicks":     17,
		"incorrect_cell":   3,
		"perseveration":    1,
		"incomplete":       1,
	}
	for k, v := range want {
		if stats[k] != v {
			t.Errorf("stats[%s] = %v, want %d", k, stats[k], v)
		}
	}

	s.ResetSession()
	if got := s.Stats()["attempts"]; got != 0 {
		t.Fatalf("attempts after reset = %v", got)
	}
}

func TestMemoryMazeReplaysMissedLevel(t *testing.T) {
	c := mustCatalog(t)
	cfg, scorer, err := c.Build("memory-maze", rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	fc := clockwork.NewFakeClock()
	seq, err := round.NewSequencer(cfg, round.WithClock(fc), round.WithScorer(scorer))
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}

	first := cfg.Rounds[0].Answer.([]int)
	seq.Start()
	seq.Commit([]int{-1})
	// Advance past the settle delay; the timer runs on its own goroutine.
	fc.Advance(cfg.SettleDelay)
	deadline := time.Now().Add(2 * time.Second)
	for seq.State() != round.StateActive && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	snap := seq.Snapshot()
	if snap.Status != round.StateActive || snap.Position != 1 || snap.Attempt != 2 {
		t.Fatalf("after a miss: %+v, want level 1 replayed", snap)
	}
	prompt := snap.Prompt.(Prompt)
	if prompt.Level != 1 || len(prompt.Pattern) != len(first) {
		t.Fatalf("replayed prompt = %+v", prompt)
	}

	seq.Commit(first)
	fc.Advance(cfg.SettleDelay)
	deadline = time.Now().Add(2 * time.Second)
	for seq.State() != round.StateActive && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if snap := seq.Snapshot(); snap.Position != 2 || snap.Score != 30 {
		t.Fatalf("after a hit: %+v, want level 2", snap)
	}
	if seq.State() == round.StateFinished {
		t.Fatal("session finished after a single miss")
	}
}

func TestGoNoGoScorer(t *testing.T) {
	s := GoNoGoScorer{Points: 10, StopOnMiss: true}
	if out := s.Score(round.RoundSpec{Answer: StimulusGreen}, "click", 0); out.Points != 10 || !*out.Correct {
		t.Fatalf("green = %+v", out)
	}
	if out := s.Score(round.RoundSpec{Answer: StimulusRed}, "click", 0); out.Points != 0 || *out.Correct || !out.EndSession {
		t.Fatalf("red = %+v", out)
	}
}
