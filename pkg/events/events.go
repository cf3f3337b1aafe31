package events

import (
	"encoding/json"
	"time"
)

// Server to client event kinds.
const (
	TypeOnlineUsers = "getOnlineUsers"
	TypeNewMessage  = "newMessage"
	TypePong        = "pong"
)

// Client to server event kinds.
const (
	TypePing = "ping"
)

// Event is the JSON frame exchanged over a live connection.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// Inbound is an event as decoded from a client; the payload is kept raw
// until the handler for its type decides how to read it.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func New(kind string, payload interface{}) Event {
	return Event{
		Type:      kind,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode marshals an event into a single text frame.
func Encode(kind string, payload interface{}) ([]byte, error) {
	return json.Marshal(New(kind, payload))
}
