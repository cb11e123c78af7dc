package cmd

import (
	"errors"
	"fmt"
)

var ErrNoUser = errors.New("user name required")

// CommandError is a failed step of a command.
type CommandError struct {
	Op      string
	Err     error
	Details string
}

func (e *CommandError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CommandError {
	return &CommandError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *CommandError {
	return &CommandError{Op: op, Err: err, Details: details}
}
