package signaling

import "encoding/json"

// Message is the envelope for every websocket frame exchanged with the
// relay. Type carries the event name.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event names.
const (
	EventCreateRoom = "create-room"
	EventJoinRoom   = "join-room"
	EventAnswer     = "answer"

	EventOffer        = "offer"
	EventFailedCreate = "failed-create"
	EventFailedJoin   = "failed-join"
)

// CreateRoomPayload is sent by the initiator together with its offer.
type CreateRoomPayload struct {
	Name      string          `json:"name"`
	Initiator json.RawMessage `json:"initiator"`
}

// JoinRoomPayload asks the relay for the offer stored under Name.
type JoinRoomPayload struct {
	Name string `json:"name"`
}

// AnswerPayload travels responder -> relay (with Name) and
// relay -> initiator (without).
type AnswerPayload struct {
	Name   string          `json:"name,omitempty"`
	Answer json.RawMessage `json:"answer"`
}

// OfferPayload is delivered to the responder after a successful join.
type OfferPayload struct {
	Offer json.RawMessage `json:"offer"`
}

// NewMessage marshals payload into a Message of the given event type.
// A nil payload produces an empty object, matching the failure events.
func NewMessage(event string, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Type: event, Payload: json.RawMessage(`{}`)}, nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: event, Payload: b}, nil
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return json.Unmarshal([]byte(`{}`), v)
	}
	return json.Unmarshal(m.Payload, v)
}
