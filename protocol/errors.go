package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation is the sentinel every ViolationError wraps.
var ErrProtocolViolation = errors.New("protocol: illegal message for current state")

// ViolationError names the state and message tag that made a message
// illegal, in the style of the corpus's SequenceConflictError: a sentinel
// for errors.Is plus a typed wrapper for detail.
type ViolationError struct {
	State   string
	Message string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("protocol: %s is not valid in state %s", e.Message, e.State)
}

func (e *ViolationError) Unwrap() error { return ErrProtocolViolation }

func violation(state, message string) error {
	return &ViolationError{State: state, Message: message}
}
