package sandbox

import (
	"errors"

	"github.com/dop251/goja"
)

// Errors for sandbox operations.
var (
	// ErrHalted is the interrupt value used to unwind a run on request. A run
	// ending with it is a controlled halt, never an exception.
	ErrHalted = errors.New("sandbox halted")

	// ErrNoCode is returned by execute when no source was set.
	ErrNoCode = errors.New("no source code set")
)

// RuntimeFault is an uncaught exception raised by a snippet.
type RuntimeFault struct {
	// Message is the thrown value rendered as a string.
	Message string

	Err error
}

// Error implements error.
func (f *RuntimeFault) Error() string {
	return "runtime fault: " + f.Message
}

// Unwrap returns the underlying error.
func (f *RuntimeFault) Unwrap() error {
	return f.Err
}

// IsRuntimeFault reports whether err is a snippet exception.
func IsRuntimeFault(err error) bool {
	var f *RuntimeFault
	return errors.As(err, &f)
}

// IsHalt reports whether err ended a run through a controlled halt.
func IsHalt(err error) bool {
	if errors.Is(err, ErrHalted) {
		return true
	}
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		v, ok := ie.Value().(error)
		return ok && errors.Is(v, ErrHalted)
	}
	return false
}
