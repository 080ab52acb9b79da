package mongosink

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/mcdev12/mindgames/go/internal/telemetry"
)

func TestDocumentKeepsEventFields(t *testing.T) {
	e, err := telemetry.NewEvent(uuid.New(), 2, telemetry.EventTypeRoundResumed, telemetry.RoundResumedPayload{
		RemainingMs: 3000,
		PausedMs:    10000,
	})
	if err != nil {
		t.Fatal(err)
	}
	e.GameID = "defuse"

	doc, err := toDocument(e)
	if err != nil {
		t.Fatalf("toDocument: %v", err)
	}
	if doc.ID != e.ID.String() || doc.Type != "RoundResumed" || doc.RoundIndex != 2 {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Payload["remaining_ms"] != float64(3000) {
		t.Fatalf("payload = %v", doc.Payload)
	}

	back, err := doc.event()
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	var p telemetry.RoundResumedPayload
	if err := json.Unmarshal(back.Payload, &p); err != nil || p.PausedMs != 10000 {
		t.Fatalf("payload = %s (%v)", back.Payload, err)
	}
	if back.SessionID != e.SessionID || back.GameID != "defuse" {
		t.Fatalf("event = %+v", back)
	}
}

func TestDocumentWithoutPayload(t *testing.T) {
	e, _ := telemetry.NewEvent(uuid.New(), 0, telemetry.EventTypeSessionReset, nil)
	doc, err := toDocument(e)
	if err != nil || doc.Payload != nil {
		t.Fatalf("doc = %+v, err = %v", doc, err)
	}
}
