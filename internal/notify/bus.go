// Package notify fans session notifications out to front-end listeners.
//
// A listener registers once and implements any subset of the listener
// interfaces; the bus records which ones at registration time and only
// dispatches to those.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/observable"
	"github.com/dshills/stepviz/internal/protocol"
)

// ErrNoListener is returned when a registered value implements none of the
// listener interfaces.
var ErrNoListener = errors.New("value implements no listener interface")

// ScopeListener receives variable lifetime events. The observable is nil
// for frame boundaries.
type ScopeListener interface {
	OnEnterScopeVariable(scope string, o *observable.Observable)
	OnExitScopeVariable(scope string, o *observable.Observable)
}

// MessageListener receives textual messages. status reports whether the
// condition is active; false clears a previously shown message.
type MessageListener interface {
	OnTraceMessage(msg string)
	OnCompilationError(status bool, msg string)
	OnExceptionMessage(status bool, msg string)
}

// ExecutionListener receives execution status changes.
type ExecutionListener interface {
	OnUserInteractionRequest(kind protocol.InteractionKind, title, def string)
	OnExecutionFinished()
}

// GraphListener receives structural changes of graphs and trees.
type GraphListener interface {
	OnAccessNode(o *observable.Observable, n graph.Node, access graph.AccessType)
	OnAddEdge(o *observable.Observable, src, dst graph.Node)
	OnAddNode(o *observable.Observable, n graph.Node, parent *graph.Node, side *graph.ChildSide)
	OnRemoveNode(o *observable.Observable, n graph.Node)
	OnRemoveEdge(o *observable.Observable, src, dst graph.Node)
}

// MarkerListener receives the line about to execute.
type MarkerListener interface {
	Markcl(line int)
}

// Stats holds dispatch counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Panics    uint64
}

// Bus dispatches notifications synchronously, in registration order. A
// panicking listener is logged and skipped. Bus is safe for concurrent use.
type Bus struct {
	logger *zap.Logger

	mu        sync.RWMutex
	scope     []ScopeListener
	message   []MessageListener
	execution []ExecutionListener
	graph     []GraphListener
	marker    []MarkerListener

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report listener panics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds o to the list of every listener interface it implements
// and returns how many matched.
func (b *Bus) Register(o any) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	if l, ok := o.(ScopeListener); ok {
		b.scope = append(b.scope, l)
		n++
	}
	if l, ok := o.(MessageListener); ok {
		b.message = append(b.message, l)
		n++
	}
	if l, ok := o.(ExecutionListener); ok {
		b.execution = append(b.execution, l)
		n++
	}
	if l, ok := o.(GraphListener); ok {
		b.graph = append(b.graph, l)
		n++
	}
	if l, ok := o.(MarkerListener); ok {
		b.marker = append(b.marker, l)
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("register %T: %w", o, ErrNoListener)
	}
	return n, nil
}

// Unregister removes o from every list.
func (b *Bus) Unregister(o any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scope = without(b.scope, o)
	b.message = without(b.message, o)
	b.execution = without(b.execution, o)
	b.graph = without(b.graph, o)
	b.marker = without(b.marker, o)
}

func without[L any](list []L, o any) []L {
	out := list[:0:0]
	for _, l := range list {
		if any(l) != o {
			out = append(out, l)
		}
	}
	return out
}

// Stats returns dispatch counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Panics:    b.panics.Load(),
	}
}

func snapshot[L any](b *Bus, list *[]L) []L {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return *list
}

func dispatch[L any](b *Bus, event string, listeners []L, fn func(L)) {
	b.published.Add(1)
	for _, l := range listeners {
		b.call(event, func() { fn(l) })
	}
}

func (b *Bus) call(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("listener panicked", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	fn()
	b.delivered.Add(1)
}

// OnEnterScopeVariable publishes a variable or frame entering scope.
func (b *Bus) OnEnterScopeVariable(scope string, o *observable.Observable) {
	dispatch(b, "enterScopeVariable", snapshot(b, &b.scope), func(l ScopeListener) { l.OnEnterScopeVariable(scope, o) })
}

// OnExitScopeVariable publishes a variable or frame leaving scope.
func (b *Bus) OnExitScopeVariable(scope string, o *observable.Observable) {
	dispatch(b, "exitScopeVariable", snapshot(b, &b.scope), func(l ScopeListener) { l.OnExitScopeVariable(scope, o) })
}

// OnTraceMessage publishes console output.
func (b *Bus) OnTraceMessage(msg string) {
	dispatch(b, "traceMessage", snapshot(b, &b.message), func(l MessageListener) { l.OnTraceMessage(msg) })
}

// OnCompilationError publishes or clears a compilation error.
func (b *Bus) OnCompilationError(status bool, msg string) {
	dispatch(b, "compilationError", snapshot(b, &b.message), func(l MessageListener) { l.OnCompilationError(status, msg) })
}

// OnExceptionMessage publishes or clears an exception message.
func (b *Bus) OnExceptionMessage(status bool, msg string) {
	dispatch(b, "exceptionMessage", snapshot(b, &b.message), func(l MessageListener) { l.OnExceptionMessage(status, msg) })
}

// OnUserInteractionRequest publishes a blocking interaction request.
func (b *Bus) OnUserInteractionRequest(kind protocol.InteractionKind, title, def string) {
	dispatch(b, "userInteractionRequest", snapshot(b, &b.execution), func(l ExecutionListener) { l.OnUserInteractionRequest(kind, title, def) })
}

// OnExecutionFinished publishes the end of a run.
func (b *Bus) OnExecutionFinished() {
	dispatch(b, "executionFinished", snapshot(b, &b.execution), func(l ExecutionListener) { l.OnExecutionFinished() })
}

// OnAccessNode publishes a node access.
func (b *Bus) OnAccessNode(o *observable.Observable, n graph.Node, access graph.AccessType) {
	dispatch(b, "accessNode", snapshot(b, &b.graph), func(l GraphListener) { l.OnAccessNode(o, n, access) })
}

// OnAddEdge publishes an added edge.
func (b *Bus) OnAddEdge(o *observable.Observable, src, dst graph.Node) {
	dispatch(b, "addEdge", snapshot(b, &b.graph), func(l GraphListener) { l.OnAddEdge(o, src, dst) })
}

// OnAddNode publishes an added node.
func (b *Bus) OnAddNode(o *observable.Observable, n graph.Node, parent *graph.Node, side *graph.ChildSide) {
	dispatch(b, "addNode", snapshot(b, &b.graph), func(l GraphListener) { l.OnAddNode(o, n, parent, side) })
}

// OnRemoveNode publishes a removed node.
func (b *Bus) OnRemoveNode(o *observable.Observable, n graph.Node) {
	dispatch(b, "removeNode", snapshot(b, &b.graph), func(l GraphListener) { l.OnRemoveNode(o, n) })
}

// OnRemoveEdge publishes a removed edge.
func (b *Bus) OnRemoveEdge(o *observable.Observable, src, dst graph.Node) {
	dispatch(b, "removeEdge", snapshot(b, &b.graph), func(l GraphListener) { l.OnRemoveEdge(o, src, dst) })
}

// Markcl publishes the line about to execute.
func (b *Bus) Markcl(line int) {
	dispatch(b, "markcl", snapshot(b, &b.marker), func(l MarkerListener) { l.Markcl(line) })
}
