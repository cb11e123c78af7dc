package relay

import (
	"encoding/json"

	"github.com/BioHazard786/Warpchat/internal/signaling"
)

// Message is the relay-side view of a signaling frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

func newMessage(event string, payload any) *Message {
	msg, err := signaling.NewMessage(event, payload)
	if err != nil {
		// Payloads here are relay-built structs around already-valid JSON.
		return &Message{Type: event, Payload: json.RawMessage(`{}`)}
	}
	return &Message{Type: msg.Type, Payload: msg.Payload}
}

func (m *Message) decode(v any) error {
	if len(m.Payload) == 0 {
		return json.Unmarshal([]byte(`{}`), v)
	}
	return json.Unmarshal(m.Payload, v)
}
