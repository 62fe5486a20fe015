package bridge

import "errors"

// Errors for bridge operations.
var (
	// ErrNotInitialized is returned when the bridge is used before Init or
	// after Close.
	ErrNotInitialized = errors.New("bridge not initialized")

	// ErrAlreadyStarted is returned by a second Init.
	ErrAlreadyStarted = errors.New("bridge already started")

	// ErrNotAwaiting is returned by Respond when no interaction is pending.
	ErrNotAwaiting = errors.New("no interaction request pending")
)
