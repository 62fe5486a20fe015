package instrument

import (
	"strings"

	"github.com/dshills/stepviz/internal/protocol"
)

// DeclKind is the binding keyword of a declaration.
type DeclKind int

const (
	// DeclLet covers let, const and function parameters.
	DeclLet DeclKind = iota
	// DeclVar covers var, which widens to the enclosing function scope.
	DeclVar
)

// String returns the string representation of the kind.
func (k DeclKind) String() string {
	if k == DeclVar {
		return "var"
	}
	return "let"
}

// ScopeKind classifies a static scope.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeFunction
	ScopeLocal
)

// String returns the string representation of the kind.
func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeFunction:
		return "function"
	default:
		return "local"
	}
}

// Scope is a static scope discovered in the source. Function scopes are
// rooted at their own name ("!f.local"), everything outside functions at
// "global".
type Scope struct {
	Path  string    `json:"path"`
	Kind  ScopeKind `json:"kind"`
	Start int       `json:"start"`
	End   int       `json:"end"`
}

// VariableDeclaration is a tracked variable, unique per (Scope, Name).
type VariableDeclaration struct {
	Scope string   `json:"scope"`
	Name  string   `json:"name"`
	Kind  DeclKind `json:"kind"`

	// Sites are the offsets where setVar calls were inserted.
	Sites []int `json:"sites"`

	// Source names the variable the declaration was initialized from.
	Source string `json:"source,omitempty"`

	IsBinaryLiteral bool `json:"isBinaryLiteral,omitempty"`
}

// DeclKey identifies a declaration.
type DeclKey struct {
	Scope string
	Name  string
}

// ParamBinding records a call to a snippet function with identifier
// arguments.
type ParamBinding struct {
	CallStart int                  `json:"callStart"`
	CallEnd   int                  `json:"callEnd"`
	Callee    string               `json:"callee"`
	Pairs     []protocol.ParamPair `json:"pairs"`
}

// StaticScope converts a runtime frame path ("global.!f.local") to the
// static scope it executes ("!f.local"): the components from the innermost
// function frame on, or the whole path outside functions.
func StaticScope(runtimePath string) string {
	parts := strings.Split(runtimePath, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		if strings.HasPrefix(parts[i], "!") {
			return strings.Join(parts[i:], ".")
		}
	}
	return runtimePath
}

// staticScope is a node of the lexical scope tree built during the walk.
type staticScope struct {
	path   string
	kind   ScopeKind
	parent *staticScope
	decls  map[string]*VariableDeclaration
}

// functionScope returns the nearest function or global ancestor.
func (s *staticScope) functionScope() *staticScope {
	for s.kind == ScopeLocal && s.parent != nil {
		s = s.parent
	}
	return s
}

// resolve finds the declaration visible from s under name.
func (s *staticScope) resolve(name string) *VariableDeclaration {
	for sc := s; sc != nil; sc = sc.parent {
		if d, ok := sc.decls[name]; ok {
			return d
		}
	}
	return nil
}
