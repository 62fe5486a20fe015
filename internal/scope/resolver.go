// Package scope tracks the runtime scope frames of a running snippet and
// resolves variable names the way lexical scoping would, even though frames
// are pushed in call order.
package scope

import (
	"fmt"
	"strings"

	"github.com/dshills/stepviz/internal/protocol"
)

const (
	// Global is the name of the outermost frame.
	Global = "global"
	// Local is the name of block frames.
	Local = "local"
)

// Named is a value a frame can hold.
type Named interface {
	Name() string
}

// Key qualifies a variable by the runtime path of its frame.
type Key struct {
	Scope string
	Name  string
}

// String returns the dotted form "scope.name".
func (k Key) String() string {
	if k.Name == "" {
		return k.Scope
	}
	return k.Scope + "." + k.Name
}

// ParseKey splits a dotted name at its last dot.
func ParseKey(qualified string) Key {
	i := strings.LastIndexByte(qualified, '.')
	if i < 0 {
		return Key{Name: qualified}
	}
	return Key{Scope: qualified[:i], Name: qualified[i+1:]}
}

// IsFunction reports whether a frame name denotes a function frame.
func IsFunction(name string) bool {
	return strings.HasPrefix(name, "!")
}

// FunctionScope returns the frame name used for a function, adding the "!"
// prefix unless the name is global, local or already prefixed.
func FunctionScope(name string) string {
	if name == Global || name == Local || IsFunction(name) || name == "" {
		return name
	}
	return "!" + name
}

// Frame is one active scope instance and its observables in creation
// order.
type Frame[T Named] struct {
	Name string
	Path string

	vars []T
}

// Add appends v to the frame.
func (f *Frame[T]) Add(v T) {
	f.vars = append(f.vars, v)
}

// Get returns the most recently added value named name.
func (f *Frame[T]) Get(name string) (T, bool) {
	for i := len(f.vars) - 1; i >= 0; i-- {
		if f.vars[i].Name() == name {
			return f.vars[i], true
		}
	}
	var zero T
	return zero, false
}

// Vars returns the frame values in creation order.
func (f *Frame[T]) Vars() []T {
	return append([]T(nil), f.vars...)
}

// Len returns the number of values in the frame.
func (f *Frame[T]) Len() int {
	return len(f.vars)
}

// IsFunction reports whether the frame is a function frame.
func (f *Frame[T]) IsFunction() bool {
	return IsFunction(f.Name)
}

// Key qualifies name by the frame path.
func (f *Frame[T]) Key(name string) Key {
	return Key{Scope: f.Path, Name: name}
}

// Resolver is the stack of active frames. It is not safe for concurrent
// use; the session owns it on its event goroutine.
type Resolver[T Named] struct {
	frames []*Frame[T]
}

// NewResolver creates an empty resolver.
func NewResolver[T Named]() *Resolver[T] {
	return &Resolver[T]{}
}

// Start pushes a frame.
func (r *Resolver[T]) Start(name string) *Frame[T] {
	name = FunctionScope(name)
	path := name
	if top := r.Top(); top != nil {
		path = top.Path + "." + name
	}
	f := &Frame[T]{Name: name, Path: path}
	r.frames = append(r.frames, f)
	return f
}

// End pops the top frame if it is named name. Anything else is a protocol
// violation.
func (r *Resolver[T]) End(name string) (*Frame[T], error) {
	name = FunctionScope(name)
	top := r.Top()
	if top == nil {
		return nil, &protocol.ProtocolError{Op: "endScope", Err: fmt.Errorf("%w: %s ended with no open scope", ErrScopeMismatch, name)}
	}
	if top.Name != name {
		return nil, &protocol.ProtocolError{Op: "endScope", Err: fmt.Errorf("%w: %s ended while %s is open", ErrScopeMismatch, name, top.Path)}
	}
	r.frames = r.frames[:len(r.frames)-1]
	return top, nil
}

// Top returns the innermost frame, nil when no frame is open.
func (r *Resolver[T]) Top() *Frame[T] {
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

// Depth returns the number of open frames.
func (r *Resolver[T]) Depth() int {
	return len(r.frames)
}

// Frames returns the open frames, outermost first.
func (r *Resolver[T]) Frames() []*Frame[T] {
	return append([]*Frame[T](nil), r.frames...)
}

// Current returns the dotted path of the open frames, innermost last.
func (r *Resolver[T]) Current() string {
	if top := r.Top(); top != nil {
		return top.Path
	}
	return ""
}

// ParentScope returns the path without the innermost frame, or global.
func (r *Resolver[T]) ParentScope() string {
	if len(r.frames) < 2 {
		return Global
	}
	return r.frames[len(r.frames)-2].Path
}

// Attach qualifies name by the current path.
func (r *Resolver[T]) Attach(name string) Key {
	return Key{Scope: r.Current(), Name: name}
}

// Visible returns the frames a lookup from the top frame may search,
// innermost first. Once a function frame has been passed, enclosing
// function and local frames belong to callers and are skipped.
func (r *Resolver[T]) Visible() []*Frame[T] {
	var out []*Frame[T]
	crossed := false
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		if crossed && (f.IsFunction() || f.Name == Local) {
			continue
		}
		out = append(out, f)
		if f.IsFunction() {
			crossed = true
		}
	}
	return out
}

// Find resolves name from the top frame.
func (r *Resolver[T]) Find(name string) (T, *Frame[T], bool) {
	for _, f := range r.Visible() {
		if v, ok := f.Get(name); ok {
			return v, f, true
		}
	}
	var zero T
	return zero, nil, false
}

// Frame returns the innermost open frame with the given path.
func (r *Resolver[T]) Frame(path string) *Frame[T] {
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].Path == path {
			return r.frames[i]
		}
	}
	return nil
}

// FindIn looks name up in the frame with the exact path.
func (r *Resolver[T]) FindIn(k Key) (T, bool) {
	if f := r.Frame(k.Scope); f != nil {
		return f.Get(k.Name)
	}
	var zero T
	return zero, false
}

// Each calls fn for every value in every open frame, innermost first.
func (r *Resolver[T]) Each(fn func(f *Frame[T], v T) bool) {
	for i := len(r.frames) - 1; i >= 0; i-- {
		for _, v := range r.frames[i].vars {
			if !fn(r.frames[i], v) {
				return
			}
		}
	}
}

// Reset drops every frame.
func (r *Resolver[T]) Reset() {
	r.frames = nil
}
