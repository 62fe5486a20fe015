package scope

import "errors"

// ErrScopeMismatch is wrapped in a protocol error when a frame ends out of
// order.
var ErrScopeMismatch = errors.New("scope mismatch")
