package graph

import "fmt"

// Mirror rebuilds a structure on the host from the events its sandbox twin
// emitted. Events must be applied in the order they were produced.
type Mirror struct {
	graph *Graph
	tree  *Tree
}

// NewMirror creates an empty mirror sharing the descriptor's identity.
func NewMirror(d Descriptor) *Mirror {
	opts := []Option{WithID(d.ID), WithName(d.Name)}
	if d.Kind.IsTree() {
		return &Mirror{tree: NewTree(d.Kind, opts...)}
	}
	return &Mirror{graph: NewGraph(d.Kind, opts...)}
}

// Structure returns the mirrored structure.
func (m *Mirror) Structure() Structure {
	if m.tree != nil {
		return m.tree
	}
	return m.graph
}

// Graph returns the mirrored graph, nil for trees.
func (m *Mirror) Graph() *Graph { return m.graph }

// Tree returns the mirrored tree, nil for graphs.
func (m *Mirror) Tree() *Tree { return m.tree }

// AddNode applies an add-node event.
func (m *Mirror) AddNode(n Node, parent *Node, side *ChildSide) error {
	if m.graph != nil {
		m.graph.AddVertex(n.Value)
		return nil
	}
	t := m.tree
	if parent == nil {
		if t.root != nil {
			return fmt.Errorf("mirror add root %s: %w", n.ID, ErrParentRequired)
		}
		t.plantRoot(n.Value)
		return nil
	}
	if side == nil {
		return fmt.Errorf("mirror add %s: %w", n.ID, ErrParentRequired)
	}
	p := t.FindByID(parent.ID)
	if p == nil {
		return fmt.Errorf("mirror add %s under %s: %w", n.ID, parent.ID, ErrNodeNotFound)
	}
	if old := p.Child(*side); old != nil {
		t.detach(old)
	}
	t.link(p, *side, NewTreeNode(n.Value))
	return nil
}

// RemoveNode applies a remove-node event. Tree nodes are spliced out
// regardless of multiplicity.
func (m *Mirror) RemoveNode(n Node) error {
	if m.graph != nil {
		m.graph.RemoveVertex(n.Value)
		return nil
	}
	target := m.tree.FindByID(n.ID)
	if target == nil {
		return fmt.Errorf("mirror remove %s: %w", n.ID, ErrNodeNotFound)
	}
	m.tree.splice(target)
	return nil
}

// AddEdge applies an add-edge event. Tree edges are implied by AddNode.
func (m *Mirror) AddEdge(src, dst Node) error {
	if m.graph != nil {
		_, _, err := m.graph.AddEdge(src.Value, dst.Value)
		return err
	}
	return nil
}

// RemoveEdge applies a remove-edge event. On trees it cuts the subtree
// rooted at dst.
func (m *Mirror) RemoveEdge(src, dst Node) error {
	if m.graph != nil {
		m.graph.RemoveEdge(src.Value, dst.Value)
		return nil
	}
	child := m.tree.FindByID(dst.ID)
	if child == nil || child.parent == nil || child.parent.node.ID != src.ID {
		return fmt.Errorf("mirror cut %s-%s: %w", src.ID, dst.ID, ErrNodeNotFound)
	}
	m.tree.detach(child)
	return nil
}

// Contains reports whether the mirror holds a node with the given id.
func (m *Mirror) Contains(id string) bool {
	if m.graph != nil {
		_, ok := m.graph.vertices[id]
		return ok
	}
	return m.tree.FindByID(id) != nil
}
