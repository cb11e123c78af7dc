package room

import (
	"fmt"
	"time"
)

// ChatMessage is one entry of the chat log. It travels encrypted as
// JSON {"from","text"}.
type ChatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// EchoPolicy decides when a sent message enters the local log.
type EchoPolicy int

const (
	// EchoImmediately appends as soon as SendChat is called, before
	// encryption.
	EchoImmediately EchoPolicy = iota

	// EchoAfterConfirmedSend appends only once the ciphertext has been
	// handed to the transport.
	EchoAfterConfirmedSend
)

func (p EchoPolicy) String() string {
	if p == EchoAfterConfirmedSend {
		return "confirmed"
	}
	return "immediate"
}

// ParseEchoPolicy maps "immediate" and "confirmed" to a policy.
func ParseEchoPolicy(s string) (EchoPolicy, error) {
	switch s {
	case "", "immediate":
		return EchoImmediately, nil
	case "confirmed":
		return EchoAfterConfirmedSend, nil
	}
	return EchoImmediately, fmt.Errorf("%w: echo policy %q", ErrUnknownOption, s)
}

// Stats counts traffic for the session summary.
type Stats struct {
	Sent            int
	Received        int
	Deferred        int
	DecryptFailures int
	SendFailures    int
	ConnectedAt     time.Time
}

// UpdateKind tells consumers what changed.
type UpdateKind int

const (
	UpdateState UpdateKind = iota
	UpdateMessage
	UpdateKeyExchanged
	UpdateError
)

// Update is published on the coordinator's Updates channel.
type Update struct {
	Kind    UpdateKind
	State   ConnectionState
	Message ChatMessage

	// Local is set for messages this side sent.
	Local bool

	Err error
}
