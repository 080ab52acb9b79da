package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a sequencer transition.
type EventType string

const (
	EventTypeSessionStarted  EventType = "SessionStarted"
	EventTypeRoundStarted    EventType = "RoundStarted"
	EventTypeRoundPaused     EventType = "RoundPaused"
	EventTypeRoundResumed    EventType = "RoundResumed"
	EventTypeActionCommitted EventType = "ActionCommitted"
	EventTypeRoundTimedOut   EventType = "RoundTimedOut"
	EventTypeSessionEnded    EventType = "SessionEnded"
	EventTypeSessionReset    EventType = "SessionReset"
)

// Event is one structured telemetry record. Once handed to a Sink the
// event belongs to the sink.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	SessionID  uuid.UUID       `json:"session_id"`
	GameID     string          `json:"game_id,omitempty"`
	PlayerID   string          `json:"player_id,omitempty"`
	RoundIndex int             `json:"round_index"`
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh ID and a UTC wall-clock timestamp,
// marshalling payload into the raw payload field.
func NewEvent(sessionID uuid.UUID, roundIndex int, eventType EventType, payload any) (Event, error) {
	ev := Event{
		ID:         uuid.New(),
		Timestamp:  time.Now().UTC(),
		SessionID:  sessionID,
		RoundIndex: roundIndex,
		Type:       eventType,
	}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev.Payload = data
	return ev, nil
}

// DecodePayload unmarshals the raw payload into v.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
