package protocol

import (
	"errors"
	"fmt"
)

// Errors for protocol operations.
var (
	// ErrNoSharedMemory is returned when a command arrives before the
	// shared memory handshake.
	ErrNoSharedMemory = errors.New("shared memory handshake missing")

	// ErrMalformedMessage is returned when an event carries unexpected params.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownCommand is returned for commands the receiver does not handle.
	ErrUnknownCommand = errors.New("unknown command")
)

// ProtocolError reports a violation of the host/sandbox contract. It always
// indicates an implementation defect rather than a snippet error.
type ProtocolError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
