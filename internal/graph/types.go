// Package graph implements the observable graph and tree structures that
// snippets build. The same model backs the sandbox side, where snippets
// mutate it, and the host side, where mirrors are rebuilt from events.
//
// Structures are not safe for concurrent use; each is owned by a single
// goroutine.
package graph

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Kind identifies the concrete structure.
type Kind int

const (
	KindDirected Kind = iota
	KindUndirected
	KindBST
	KindBinaryTree
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindDirected:
		return "directed"
	case KindUndirected:
		return "undirected"
	case KindBST:
		return "bst"
	case KindBinaryTree:
		return "binary-tree"
	default:
		return "unknown"
	}
}

// IsTree reports whether the kind is a tree kind.
func (k Kind) IsTree() bool {
	return k == KindBST || k == KindBinaryTree
}

// ChildSide is the side of a tree node relative to its parent.
type ChildSide int

const (
	SideLeft ChildSide = iota
	SideRight
)

// String returns the string representation of the side.
func (s ChildSide) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// AccessType distinguishes a plain visit from an explicit highlight.
type AccessType int

const (
	AccessRead AccessType = iota
	AccessMark
)

// String returns the string representation of the access type.
func (a AccessType) String() string {
	if a == AccessMark {
		return "mark"
	}
	return "access"
}

// Node is the value-level view of a vertex or tree node.
type Node struct {
	Value any    `json:"value"`
	Label string `json:"label"`
	ID    string `json:"id"`
}

// NewNode creates a node whose label and id are the formatted value.
func NewNode(v any) Node {
	s := Format(v)
	return Node{Value: v, Label: s, ID: s}
}

// Descriptor identifies a structure across the host/sandbox boundary. It is
// the only part of a structure that crosses by value.
type Descriptor struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name,omitempty"`
}

// Observer receives structural notifications.
type Observer interface {
	OnAccessNode(d Descriptor, n Node, access AccessType)
	OnAddNode(d Descriptor, n Node, parent *Node, side *ChildSide)
	OnRemoveNode(d Descriptor, n Node)
	OnAddEdge(d Descriptor, src, dst Node)
	OnRemoveEdge(d Descriptor, src, dst Node)
}

// Structure is implemented by Graph and Tree.
type Structure interface {
	Descriptor() Descriptor
	SetName(name string)
	Subscribe(o Observer)
	Unsubscribe(o Observer)
	AccessValue(v any, access AccessType) bool
	IsEmpty() bool
	Empty()
}

// observable holds identity and observers shared by every structure.
type observable struct {
	desc      Descriptor
	observers []Observer
}

func newObservable(kind Kind, id string) observable {
	if id == "" {
		id = uuid.NewString()
	}
	return observable{desc: Descriptor{ID: id, Kind: kind}}
}

// Descriptor returns the structure descriptor.
func (o *observable) Descriptor() Descriptor {
	return o.desc
}

// SetName records the variable name the structure is bound to.
func (o *observable) SetName(name string) {
	o.desc.Name = name
}

// Subscribe registers an observer. Registering twice is a no-op.
func (o *observable) Subscribe(obs Observer) {
	for _, existing := range o.observers {
		if existing == obs {
			return
		}
	}
	o.observers = append(o.observers, obs)
}

// Unsubscribe removes an observer.
func (o *observable) Unsubscribe(obs Observer) {
	for i, existing := range o.observers {
		if existing == obs {
			o.observers = append(o.observers[:i], o.observers[i+1:]...)
			return
		}
	}
}

func (o *observable) emitAccess(n Node, access AccessType) {
	for _, obs := range o.observers {
		obs.OnAccessNode(o.desc, n, access)
	}
}

func (o *observable) emitAddNode(n Node, parent *Node, side *ChildSide) {
	for _, obs := range o.observers {
		obs.OnAddNode(o.desc, n, parent, side)
	}
}

func (o *observable) emitRemoveNode(n Node) {
	for _, obs := range o.observers {
		obs.OnRemoveNode(o.desc, n)
	}
}

func (o *observable) emitAddEdge(src, dst Node) {
	for _, obs := range o.observers {
		obs.OnAddEdge(o.desc, src, dst)
	}
}

func (o *observable) emitRemoveEdge(src, dst Node) {
	for _, obs := range o.observers {
		obs.OnRemoveEdge(o.desc, src, dst)
	}
}

// Format renders a payload value the way node labels show it. Integral
// floats print without a fractional part so 1 and 1.0 share an id.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Less orders payload values: numbers numerically, everything else by
// formatted string.
func Less(a, b any) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		return fa < fb
	}
	return Format(a) < Format(b)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
