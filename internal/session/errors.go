package session

import "errors"

// Errors for session operations.
var (
	// ErrNoCode is returned by StartReplay when no valid code was set.
	ErrNoCode = errors.New("no instrumented code to run")

	// ErrNoScope is wrapped in a protocol error when a variable event
	// arrives outside any scope frame.
	ErrNoScope = errors.New("no open scope")

	// ErrNotWaiting is returned when responding outside an interaction.
	ErrNotWaiting = errors.New("session is not waiting for an interaction")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// InternalErrorPrefix starts the exception message published for protocol
// violations.
const InternalErrorPrefix = "internal error: "
