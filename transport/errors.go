// Package transport holds the error types a concrete transport reports
// connection failures with (transport/ws uses them; transport/memory
// returns no errors): a connection-level failure is distinct from a
// protocol violation raised by the FSMs themselves.
package transport

import "errors"

// ErrFailure is the sentinel a transport wraps any connection-level error
// in, so callers can distinguish "the wire broke" from "the peer said
// something illegal" (protocol.ErrProtocolViolation) with errors.Is.
var ErrFailure = errors.New("transport: connection failure")

// FailureError carries the underlying transport error (a websocket close,
// a read/write error) behind ErrFailure, in the same errors.New+Unwrap
// style as eventlog.ConflictError and protocol.ViolationError.
type FailureError struct {
	Err error
}

func (e *FailureError) Error() string { return "transport: " + e.Err.Error() }

func (e *FailureError) Unwrap() error { return ErrFailure }

// Wrap reports err (if non-nil) as a *FailureError.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &FailureError{Err: err}
}
