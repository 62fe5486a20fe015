package protocol

import "fmt"

// Message is a one-way event pushed from the sandbox to the bridge.
type Message struct {
	// Run identifies the execution that produced the event.
	Run uint64

	// Cmd is the event command.
	Cmd Command

	// Params holds the positional parameters of the event.
	Params []any
}

// String returns a compact description used in logs.
func (m Message) String() string {
	return fmt.Sprintf("%s#%d%v", m.Cmd, m.Run, m.Params)
}

// Request is a host command that expects exactly one reply.
type Request struct {
	Cmd    Command
	Params []any

	// Reply receives the single response. It is buffered so the agent
	// never blocks on an abandoned request.
	Reply chan Reply
}

// NewRequest creates a request with a disposable reply channel.
func NewRequest(cmd Command, params ...any) *Request {
	return &Request{
		Cmd:    cmd,
		Params: params,
		Reply:  make(chan Reply, 1),
	}
}

// Reply is the response to a Request.
type Reply struct {
	Params []any
	Err    error
}

// ParamPair binds a callee parameter to the caller argument passed for it.
// Param is qualified by the callee scope ("!f.a").
type ParamPair struct {
	Param string
	Arg   string
}

// String returns a debug representation of the pair.
func (p ParamPair) String() string {
	return p.Param + "<-" + p.Arg
}

// Param returns the positional parameter at index i converted to T.
// A missing or mistyped parameter yields a *ProtocolError.
func Param[T any](m Message, i int) (T, error) {
	var zero T
	if i >= len(m.Params) {
		return zero, &ProtocolError{Op: m.Cmd.String(), Err: fmt.Errorf("%w: missing parameter %d", ErrMalformedMessage, i)}
	}
	v, ok := m.Params[i].(T)
	if !ok {
		return zero, &ProtocolError{Op: m.Cmd.String(), Err: fmt.Errorf("%w: parameter %d is %T", ErrMalformedMessage, i, m.Params[i])}
	}
	return v, nil
}

// OptionalParam is like Param but a missing or nil parameter yields the zero
// value and false.
func OptionalParam[T any](m Message, i int) (T, bool, error) {
	var zero T
	if i >= len(m.Params) || m.Params[i] == nil {
		return zero, false, nil
	}
	v, err := Param[T](m, i)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}
