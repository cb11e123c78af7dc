package room

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNegotiationFailed = errors.New("room negotiation failed")
	ErrClosed            = errors.New("coordinator closed")
	ErrMissingName       = errors.New("room name and user name are required")
	ErrMalformedPayload  = errors.New("malformed transport payload")
	ErrKeyExchange       = errors.New("key exchange failed")
	ErrUnknownOption     = errors.New("unknown option")
)

// NegotiationError is raised when the relay rejects a create or join.
type NegotiationError struct {
	Op   string
	Room string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Room, ErrNegotiationFailed)
}

func (e *NegotiationError) Unwrap() error {
	return ErrNegotiationFailed
}

// TransportError wraps failures reported by the peer session or the relay
// connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CryptoError wraps key generation, encryption and decryption failures.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}
