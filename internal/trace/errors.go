package trace

import "errors"

var (
	// ErrNoRun is returned when recording before Begin.
	ErrNoRun = errors.New("no run in progress")

	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRecords is returned when Query input is not JSON lines.
	ErrInvalidRecords = errors.New("invalid trace records")
)
