package peer

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("data channel not connected")
	ErrBadSignal        = errors.New("unexpected signal")
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrGatherTimeout    = errors.New("ICE gathering timed out")
	ErrClosed           = errors.New("peer session closed")
)

// Error records the peer operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
