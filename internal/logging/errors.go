package logging

import "errors"

var (
	// ErrUnknownLevel is returned for an unrecognized level name.
	ErrUnknownLevel = errors.New("unknown log level")

	// ErrUnknownFormat is returned for an unrecognized encoding.
	ErrUnknownFormat = errors.New("unknown log format")
)
