// Package instrument rewrites a snippet so that, when run, it reports line
// marks, scope changes, variable updates and parameter bindings through a
// fixed set of injected functions. Instrumentation is pure: nothing is
// executed.
package instrument

import (
	"errors"
	"strings"

	"github.com/dop251/goja/parser"
	"go.uber.org/zap"
)

// Result is the outcome of instrumenting a snippet.
type Result struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Declarations []VariableDeclaration `json:"declarations,omitempty"`
	Scopes       []Scope               `json:"scopes,omitempty"`
	Params       []ParamBinding        `json:"params,omitempty"`

	index map[DeclKey]int
}

// Lookup returns the declaration of name in the static scope.
func (r *Result) Lookup(scope, name string) (VariableDeclaration, bool) {
	if r.index == nil {
		return VariableDeclaration{}, false
	}
	i, ok := r.index[DeclKey{Scope: scope, Name: name}]
	if !ok {
		return VariableDeclaration{}, false
	}
	return r.Declarations[i], true
}

// Instrumenter turns snippets into instrumented code.
type Instrumenter struct {
	logger *zap.Logger
}

// Option configures an Instrumenter.
type Option func(*Instrumenter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Instrumenter) {
		if l != nil {
			in.logger = l
		}
	}
}

// New creates an Instrumenter.
func New(opts ...Option) *Instrumenter {
	in := &Instrumenter{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// SetCode instruments text. A failed instrumentation returns a Result with
// OK false and Message set, together with ErrNoCode or a *SyntaxError.
func (in *Instrumenter) SetCode(text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{Message: NoCodeMessage}, ErrNoCode
	}

	src := wrapInteractions(text)
	prog, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		se := syntaxError(err)
		in.logger.Debug("snippet does not parse", zap.Int("line", se.Line), zap.String("message", se.Message))
		return Result{Message: se.Error()}, se
	}

	w := newWalker(src)
	w.program(prog)
	w.resolve()
	w.markLines()
	sortInsertions(w.ins)

	res := Result{
		OK:     true,
		Code:   apply(src, w.ins),
		Scopes: w.spans,
		Params: w.params,
		index:  make(map[DeclKey]int, len(w.decls)),
	}
	for i, d := range w.decls {
		res.Declarations = append(res.Declarations, *d)
		res.index[DeclKey{Scope: d.Scope, Name: d.Name}] = i
	}

	in.logger.Debug("snippet instrumented",
		zap.Int("declarations", len(res.Declarations)),
		zap.Int("scopes", len(res.Scopes)),
		zap.Int("insertions", len(w.ins)))
	return res, nil
}

func syntaxError(err error) *SyntaxError {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &SyntaxError{Line: first.Position.Line, Column: first.Position.Column, Message: first.Message, Err: err}
	}
	var pe *parser.Error
	if errors.As(err, &pe) {
		return &SyntaxError{Line: pe.Position.Line, Column: pe.Position.Column, Message: pe.Message, Err: err}
	}
	return &SyntaxError{Line: 1, Message: err.Error(), Err: err}
}
