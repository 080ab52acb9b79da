package sqlitesink

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mcdev12/mindgames/go/internal/round"
	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustEvent(t *testing.T, session uuid.UUID, index int, typ telemetry.EventType, payload any) telemetry.Event {
	t.Helper()
	e, err := telemetry.NewEvent(session, index, typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	e.GameID = "emotion-catcher"
	return e
}

func TestWriteAndListSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	session := uuid.New()

	events := []telemetry.Event{
		mustEvent(t, session, 0, telemetry.EventTypeSessionStarted, telemetry.SessionStartedPayload{TotalRounds: 2}),
		mustEvent(t, session, 1, telemetry.EventTypeRoundStarted, telemetry.RoundStartedPayload{RoundKey: "h1"}),
		mustEvent(t, session, 1, telemetry.EventTypeActionCommitted, telemetry.RoundOutcomePayload{
			RoundKey:       "h1",
			Action:         "Happy",
			ReactionTimeMs: 840,
			Correct:        round.Bool(true),
			Points:         1,
			ScoreAfter:     1,
		}),
		mustEvent(t, session, 2, telemetry.EventTypeRoundTimedOut, telemetry.RoundOutcomePayload{
			RoundKey:       "a1",
			ReactionTimeMs: 15000,
			TimedOut:       true,
			ScoreAfter:     1,
		}),
	}
	for _, e := range events {
		if err := s.Write(ctx, e); err != nil {
			t.Fatalf("Write(%s): %v", e.Type, err)
		}
	}
	// a retried write of the same event is ignored
	if err := s.Write(ctx, events[2]); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := s.Write(ctx, mustEvent(t, uuid.New(), 1, telemetry.EventTypeRoundStarted, nil)); err != nil {
		t.Fatalf("other session: %v", err)
	}

	got, err := s.ListSession(ctx, session)
	if err != nil {
		t.Fatalf("ListSession: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i].ID != events[i].ID || got[i].Type != events[i].Type || got[i].GameID != "emotion-catcher" {
			t.Fatalf("event %d = %+v, want %+v", i, got[i], events[i])
		}
	}

	rounds, err := s.Rounds(ctx, session)
	if err != nil {
		t.Fatalf("Rounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("got %d rounds, want 2", len(rounds))
	}
	first, second := rounds[0], rounds[1]
	if first.RoundNumber != 1 || string(first.Action) != `"Happy"` || first.Correct == nil || !*first.Correct || first.Points != 1 {
		t.Fatalf("first round = %+v", first)
	}
	if first.ReactionTime.Milliseconds() != 840 {
		t.Fatalf("reaction time = %v", first.ReactionTime)
	}
	if !second.TimedOut || second.Action != nil || second.Correct != nil {
		t.Fatalf("second round = %+v", second)
	}
}
