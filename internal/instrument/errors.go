package instrument

import (
	"errors"
	"fmt"
)

// Errors for instrumentation.
var (
	// ErrNoCode is returned for empty or whitespace-only input.
	ErrNoCode = errors.New("no code")
)

// NoCodeMessage is the Result message for empty input.
const NoCodeMessage = "No code"

// SyntaxError reports a snippet that does not parse.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Unwrap returns the underlying parser error.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// IsSyntaxError reports whether err is or wraps a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}
