package gateway

import (
	"encoding/json"

	"github.com/mcdev12/mindgames/go/internal/round"
)

// MessageType tags every frame sent over a play connection.
type MessageType string

const (
	// server to client
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeAck      MessageType = "ack"
	MessageTypeError    MessageType = "error"
	MessageTypeClosed   MessageType = "closed"

	// client to server
	MessageTypeStart  MessageType = "start"
	MessageTypeSubmit MessageType = "submit"
	MessageTypePause  MessageType = "pause"
	MessageTypeResume MessageType = "resume"
	MessageTypeReset  MessageType = "reset"
	MessageTypeSync   MessageType = "sync"
)

// ServerMessage is a frame pushed to the client.
type ServerMessage struct {
	Type     MessageType     `json:"type"`
	PlayID   string          `json:"play_id"`
	Command  MessageType     `json:"command,omitempty"`
	Accepted bool            `json:"accepted,omitempty"`
	Error    string          `json:"error,omitempty"`
	Snapshot *round.Snapshot `json:"snapshot,omitempty"`
}

// ClientMessage is a command received from the client. Action is kept raw
// and decoded into a generic value before it reaches a scorer.
type ClientMessage struct {
	Type   MessageType     `json:"type"`
	Round  int             `json:"round,omitempty"`
	Action json.RawMessage `json:"action,omitempty"`
}

func snapshotMessage(playID string, snap round.Snapshot) ServerMessage {
	return ServerMessage{Type: MessageTypeSnapshot, PlayID: playID, Snapshot: &snap}
}
