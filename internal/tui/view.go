// Package tui implements the terminal front ends of stepviz: a full-screen
// tcell stepper and a line-mode stepper for dumb terminals and pipes.
package tui

import (
	"sync"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/observable"
	"github.com/dshills/stepviz/internal/protocol"
)

// maxConsole bounds the retained console lines.
const maxConsole = 500

// Interaction is a pending alert, confirm or prompt.
type Interaction struct {
	Kind    protocol.InteractionKind
	Title   string
	Default string
}

// VarState is a rendered variable.
type VarState struct {
	Name  string
	Kind  string
	Value string
}

// FrameState is a rendered scope frame.
type FrameState struct {
	Scope string
	Vars  []VarState
}

// ViewState is a point-in-time copy of what the front ends display.
type ViewState struct {
	Line         int
	Frames       []FrameState
	Console      []string
	CompileError string
	Exception    string
	Structure    string
	Pending      *Interaction
	Finished     bool
}

type frame struct {
	scope string
	vars  []*observable.Observable
}

// View follows bus notifications and keeps the state shown to the user.
// onChange is called after every update, outside the view lock.
type View struct {
	onChange func()

	mu        sync.Mutex
	line      int
	frames    []frame
	console   []string
	compile   string
	exception string
	structure string
	pending   *Interaction
	finished  bool
}

// NewView creates an empty view.
func NewView(onChange func()) *View {
	if onChange == nil {
		onChange = func() {}
	}
	return &View{onChange: onChange}
}

func (v *View) update(fn func()) {
	v.mu.Lock()
	fn()
	v.mu.Unlock()
	v.onChange()
}

// Reset clears run state before a replay. Compilation errors survive.
func (v *View) Reset() {
	v.update(func() {
		v.line = 0
		v.frames = nil
		v.console = nil
		v.exception = ""
		v.structure = ""
		v.pending = nil
		v.finished = false
	})
}

// Answered clears the pending interaction.
func (v *View) Answered() {
	v.update(func() { v.pending = nil })
}

// Pending returns the pending interaction, if any.
func (v *View) Pending() *Interaction {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pending == nil {
		return nil
	}
	p := *v.pending
	return &p
}

// Snapshot renders the current state.
func (v *View) Snapshot() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := ViewState{
		Line:         v.line,
		Console:      append([]string(nil), v.console...),
		CompileError: v.compile,
		Exception:    v.exception,
		Structure:    v.structure,
		Finished:     v.finished,
	}
	if v.pending != nil {
		p := *v.pending
		st.Pending = &p
	}
	for _, f := range v.frames {
		fs := FrameState{Scope: f.scope}
		for _, o := range f.vars {
			fs.Vars = append(fs.Vars, VarState{Name: o.Name(), Kind: o.Kind().String(), Value: o.String()})
		}
		st.Frames = append(st.Frames, fs)
	}
	return st
}

// OnEnterScopeVariable pushes a frame or adds a variable to its frame.
func (v *View) OnEnterScopeVariable(scope string, o *observable.Observable) {
	v.update(func() {
		if o == nil {
			v.frames = append(v.frames, frame{scope: scope})
			return
		}
		if i := v.find(scope); i >= 0 {
			v.frames[i].vars = append(v.frames[i].vars, o)
		}
	})
}

// OnExitScopeVariable pops a frame or removes a variable.
func (v *View) OnExitScopeVariable(scope string, o *observable.Observable) {
	v.update(func() {
		i := v.find(scope)
		if i < 0 {
			return
		}
		if o == nil {
			v.frames = append(v.frames[:i], v.frames[i+1:]...)
			return
		}
		vars := v.frames[i].vars
		for j, existing := range vars {
			if existing == o {
				v.frames[i].vars = append(vars[:j], vars[j+1:]...)
				return
			}
		}
	})
}

// find returns the innermost frame for scope. v.mu must be held.
func (v *View) find(scope string) int {
	for i := len(v.frames) - 1; i >= 0; i-- {
		if v.frames[i].scope == scope {
			return i
		}
	}
	return -1
}

// OnTraceMessage appends console output.
func (v *View) OnTraceMessage(msg string) {
	v.update(func() {
		v.console = append(v.console, msg)
		if over := len(v.console) - maxConsole; over > 0 {
			v.console = append([]string(nil), v.console[over:]...)
		}
	})
}

// OnCompilationError sets or clears the compilation error.
func (v *View) OnCompilationError(status bool, msg string) {
	v.update(func() {
		v.compile = ""
		if status {
			v.compile = msg
		}
	})
}

// OnExceptionMessage sets or clears the exception.
func (v *View) OnExceptionMessage(status bool, msg string) {
	v.update(func() {
		v.exception = ""
		if status {
			v.exception = msg
		}
	})
}

// OnUserInteractionRequest records the pending interaction.
func (v *View) OnUserInteractionRequest(kind protocol.InteractionKind, title, def string) {
	v.update(func() {
		v.pending = &Interaction{Kind: kind, Title: title, Default: def}
	})
}

// OnExecutionFinished marks the replay as ended.
func (v *View) OnExecutionFinished() {
	v.update(func() {
		v.finished = true
		v.pending = nil
	})
}

// Markcl moves the current line.
func (v *View) Markcl(line int) {
	v.update(func() { v.line = line })
}

func (v *View) structureEvent(o *observable.Observable, what string) {
	v.update(func() {
		name := "structure"
		if o != nil {
			name = o.Name()
		}
		v.structure = name + ": " + what
	})
}

// OnAccessNode shows a node access.
func (v *View) OnAccessNode(o *observable.Observable, n graph.Node, access graph.AccessType) {
	v.structureEvent(o, access.String()+" "+n.Label)
}

// OnAddEdge shows an added edge.
func (v *View) OnAddEdge(o *observable.Observable, src, dst graph.Node) {
	v.structureEvent(o, "edge "+src.Label+" -> "+dst.Label)
}

// OnAddNode shows an added node.
func (v *View) OnAddNode(o *observable.Observable, n graph.Node, parent *graph.Node, side *graph.ChildSide) {
	what := "add " + n.Label
	if parent != nil && side != nil {
		what += " (" + side.String() + " of " + parent.Label + ")"
	}
	v.structureEvent(o, what)
}

// OnRemoveNode shows a removed node.
func (v *View) OnRemoveNode(o *observable.Observable, n graph.Node) {
	v.structureEvent(o, "remove "+n.Label)
}

// OnRemoveEdge shows a removed edge.
func (v *View) OnRemoveEdge(o *observable.Observable, src, dst graph.Node) {
	v.structureEvent(o, "remove edge "+src.Label+" -> "+dst.Label)
}
