package room

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// WireFormat selects how payloads on the data channel are framed.
type WireFormat int

const (
	// WireLegacy sends bare text: the first payload is the public key, every
	// later one is ciphertext. A key overtaken by a chat message on a lower
	// layer would be misread as chat.
	WireLegacy WireFormat = iota

	// WireTagged wraps each payload in a msgpack envelope naming its kind.
	// Not understood by legacy peers.
	WireTagged
)

func (f WireFormat) String() string {
	if f == WireTagged {
		return "tagged"
	}
	return "legacy"
}

// ParseWireFormat maps "legacy" and "tagged" to a format.
func ParseWireFormat(s string) (WireFormat, error) {
	switch s {
	case "", "legacy":
		return WireLegacy, nil
	case "tagged":
		return WireTagged, nil
	}
	return WireLegacy, fmt.Errorf("%w: wire format %q", ErrUnknownOption, s)
}

// Envelope types
const (
	envelopeKey     = "key"
	envelopeMessage = "message"
)

// envelope is the tagged frame for every data channel payload.
type envelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

func newEnvelope(t string, payload string) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(envelope{Type: t, Payload: b})
}

// encode frames text of the given kind for the transport.
func (f WireFormat) encode(kind, text string) ([]byte, error) {
	if f == WireLegacy {
		return []byte(text), nil
	}
	return newEnvelope(kind, text)
}

// decode classifies an inbound payload. Legacy payloads carry no kind, so
// the first one seen is the key.
func (f WireFormat) decode(data []byte, haveRemoteKey bool) (kind, text string, err error) {
	if f == WireLegacy {
		if haveRemoteKey {
			return envelopeMessage, string(data), nil
		}
		return envelopeKey, string(data), nil
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type != envelopeKey && env.Type != envelopeMessage {
		return "", "", fmt.Errorf("%w: envelope type %q", ErrMalformedPayload, env.Type)
	}
	if err := msgpack.Unmarshal(env.Payload, &text); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return env.Type, text, nil
}
