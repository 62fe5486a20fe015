// Package observable implements the runtime observables a debug session
// tracks for snippet variables: a stable identity, the value first seen, the
// current value and change notifications.
package observable

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/stepviz/internal/graph"
)

// Kind classifies the value an observable holds.
type Kind int

const (
	KindUndefined Kind = iota
	KindPrimitive
	KindArray
	KindObject
	KindReference
	KindGraph
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindPrimitive:
		return "primitive"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindReference:
		return "reference"
	case KindGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// IsCompound reports whether values of the kind are shared by reference in
// snippets.
func (k Kind) IsCompound() bool {
	return k == KindArray || k == KindObject
}

// KindOf classifies an exported snippet value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindUndefined
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	case graph.Descriptor, *graph.Descriptor:
		return KindGraph
	default:
		return KindPrimitive
	}
}

// Observer receives value changes of an observable.
type Observer interface {
	OnSet(o *Observable, old, val any)
	OnSetReference(o *Observable, old, target string)
}

// Observable is a tracked snippet variable. Its identity never changes;
// only its value or reference target do. It is safe for concurrent use.
type Observable struct {
	id     string
	name   string
	binary bool

	mu        sync.RWMutex
	kind      Kind
	initial   any
	value     any
	reference string
	mirror    *graph.Mirror
	observers []Observer
}

// Option configures an Observable.
type Option func(*Observable)

// WithBinary marks a numeric variable written as a binary literal.
func WithBinary(binary bool) Option {
	return func(o *Observable) {
		o.binary = binary
	}
}

// WithID sets the identity instead of generating one.
func WithID(id string) Option {
	return func(o *Observable) {
		if id != "" {
			o.id = id
		}
	}
}

// New creates an observable holding a copy of value.
func New(name string, value any, opts ...Option) *Observable {
	o := &Observable{
		id:      uuid.NewString(),
		name:    name,
		kind:    KindOf(value),
		initial: Copy(value),
		value:   Copy(value),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewGraph creates an observable bound to a host mirror. The mirror shares
// the identity of the sandbox structure.
func NewGraph(name string, m *graph.Mirror) *Observable {
	d := m.Structure().Descriptor()
	m.Structure().SetName(name)
	d.Name = name
	return &Observable{id: d.ID, name: name, kind: KindGraph, initial: d, value: d, mirror: m}
}

// NewReference creates an observable standing for another storage
// location, named by its qualified key.
func NewReference(name, target string) *Observable {
	return &Observable{id: uuid.NewString(), name: name, kind: KindReference, reference: target}
}

// ID returns the stable identity.
func (o *Observable) ID() string { return o.id }

// Name returns the variable name.
func (o *Observable) Name() string { return o.name }

// IsBinary reports whether the variable was written as a binary literal.
func (o *Observable) IsBinary() bool { return o.binary }

// Kind returns the current kind.
func (o *Observable) Kind() Kind {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.kind
}

// Value returns a copy of the current value.
func (o *Observable) Value() any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Copy(o.value)
}

// InitialValue returns a copy of the value the observable was created with.
func (o *Observable) InitialValue() any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Copy(o.initial)
}

// Reference returns the qualified key a reference observable stands for.
func (o *Observable) Reference() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.reference
}

// Mirror returns the host structure of a graph observable.
func (o *Observable) Mirror() *graph.Mirror {
	return o.mirror
}

// Descriptor returns the structure descriptor of a graph observable.
func (o *Observable) Descriptor() (graph.Descriptor, bool) {
	if o.mirror == nil {
		return graph.Descriptor{}, false
	}
	return o.mirror.Structure().Descriptor(), true
}

// SetValue stores a copy of v and notifies observers. Reference and graph
// observables keep their kind.
func (o *Observable) SetValue(v any) {
	o.mu.Lock()
	old := o.value
	o.value = Copy(v)
	if o.kind != KindReference && o.kind != KindGraph {
		o.kind = KindOf(v)
	}
	val := Copy(o.value)
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()

	for _, obs := range observers {
		obs.OnSet(o, old, val)
	}
}

// SetReference points the observable at another storage location.
func (o *Observable) SetReference(target string) {
	o.mu.Lock()
	old := o.reference
	o.reference = target
	o.kind = KindReference
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()

	if old == target {
		return
	}
	for _, obs := range observers {
		obs.OnSetReference(o, old, target)
	}
}

// Empty drops the current value. Graph observables empty their mirror.
func (o *Observable) Empty() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mirror != nil {
		o.mirror.Structure().Empty()
		return
	}
	o.value = nil
}

// Reset restores the initial value.
func (o *Observable) Reset() {
	o.SetValue(o.InitialValue())
}

// Subscribe registers an observer. Registering twice is a no-op.
func (o *Observable) Subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.observers {
		if existing == obs {
			return
		}
	}
	o.observers = append(o.observers, obs)
}

// Unsubscribe removes an observer.
func (o *Observable) Unsubscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.observers {
		if existing == obs {
			o.observers = append(o.observers[:i], o.observers[i+1:]...)
			return
		}
	}
}

// String renders the current value for display.
func (o *Observable) String() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch o.kind {
	case KindReference:
		return "-> " + o.reference
	case KindGraph:
		if o.mirror != nil {
			return describeStructure(o.mirror)
		}
	}
	if o.binary {
		if n, ok := o.value.(int64); ok {
			return "0b" + strconv.FormatInt(n, 2)
		}
		if f, ok := o.value.(float64); ok && f == float64(int64(f)) {
			return "0b" + strconv.FormatInt(int64(f), 2)
		}
	}
	return Format(o.value)
}

func describeStructure(m *graph.Mirror) string {
	d := m.Structure().Descriptor()
	var labels []string
	if g := m.Graph(); g != nil {
		for _, n := range g.Vertices() {
			labels = append(labels, n.Label)
		}
	} else {
		for _, n := range m.Tree().Nodes() {
			labels = append(labels, n.Label)
		}
	}
	return d.Kind.String() + "{" + strings.Join(labels, ", ") + "}"
}

// Format renders an exported value the way snippets print it.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case string:
		return strconv.Quote(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Format(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + Format(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case graph.Descriptor:
		return x.Kind.String() + "#" + x.ID
	default:
		return graph.Format(x)
	}
}

// Copy deep-copies arrays and objects so neither side of the boundary can
// mutate the other's state. Other values are returned as is.
func Copy(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Copy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Copy(e)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the observable for trace records.
func (o *Observable) MarshalJSON() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return json.Marshal(struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Kind      string `json:"kind"`
		Value     any    `json:"value,omitempty"`
		Reference string `json:"reference,omitempty"`
	}{o.id, o.name, o.kind.String(), o.value, o.reference})
}
