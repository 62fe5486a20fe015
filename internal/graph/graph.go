package graph

// Option configures a structure.
type Option func(*observable)

// WithID sets the structure id instead of generating one. Host mirrors use
// it to share the identity of their sandbox twin.
func WithID(id string) Option {
	return func(o *observable) {
		if id != "" {
			o.desc.ID = id
		}
	}
}

// WithName sets the bound variable name.
func WithName(name string) Option {
	return func(o *observable) {
		o.desc.Name = name
	}
}

type vertex struct {
	node   Node
	adj    []string
	adjSet map[string]struct{}
}

func (v *vertex) addAdjacent(id string) {
	if _, ok := v.adjSet[id]; ok {
		return
	}
	v.adjSet[id] = struct{}{}
	v.adj = append(v.adj, id)
}

func (v *vertex) removeAdjacent(id string) bool {
	if _, ok := v.adjSet[id]; !ok {
		return false
	}
	delete(v.adjSet, id)
	for i, a := range v.adj {
		if a == id {
			v.adj = append(v.adj[:i], v.adj[i+1:]...)
			break
		}
	}
	return true
}

func (v *vertex) isAdjacent(id string) bool {
	_, ok := v.adjSet[id]
	return ok
}

// Graph is a directed or undirected graph whose vertices keep insertion
// order. Vertices are keyed by their formatted value.
type Graph struct {
	observable

	order    []string
	vertices map[string]*vertex
}

// NewGraph creates an empty graph. Tree kinds are not accepted and fall back
// to an undirected graph.
func NewGraph(kind Kind, opts ...Option) *Graph {
	if kind != KindDirected {
		kind = KindUndirected
	}
	g := &Graph{
		observable: newObservable(kind, ""),
		vertices:   make(map[string]*vertex),
	}
	for _, opt := range opts {
		opt(&g.observable)
	}
	return g
}

// Directed reports whether edges are one-way.
func (g *Graph) Directed() bool {
	return g.desc.Kind == KindDirected
}

// IsEmpty reports whether the graph has no vertices.
func (g *Graph) IsEmpty() bool {
	return len(g.order) == 0
}

// Empty drops every vertex without emitting events.
func (g *Graph) Empty() {
	g.order = nil
	g.vertices = make(map[string]*vertex)
}

// Len returns the number of vertices.
func (g *Graph) Len() int {
	return len(g.order)
}

// Find returns the vertex holding v.
func (g *Graph) Find(v any) (Node, bool) {
	vx, ok := g.vertices[Format(v)]
	if !ok {
		return Node{}, false
	}
	return vx.node, true
}

// AccessValue emits an access event for the vertex holding v. It reports
// whether the vertex exists.
func (g *Graph) AccessValue(v any, access AccessType) bool {
	vx, ok := g.vertices[Format(v)]
	if !ok {
		return false
	}
	g.emitAccess(vx.node, access)
	return true
}

// AddVertex adds a vertex for v, or returns the existing one.
func (g *Graph) AddVertex(v any) Node {
	n := NewNode(v)
	if vx, ok := g.vertices[n.ID]; ok {
		return vx.node
	}
	g.vertices[n.ID] = &vertex{node: n, adjSet: make(map[string]struct{})}
	g.order = append(g.order, n.ID)
	g.emitAddNode(n, nil, nil)
	return n
}

// RemoveVertex removes the vertex holding v and every edge touching it. Only
// the vertex removal is reported.
func (g *Graph) RemoveVertex(v any) bool {
	id := Format(v)
	vx, ok := g.vertices[id]
	if !ok {
		return false
	}
	for _, other := range g.vertices {
		other.removeAdjacent(id)
	}
	delete(g.vertices, id)
	for i, o := range g.order {
		if o == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.emitRemoveNode(vx.node)
	return true
}

// AddEdge connects src to dst, creating missing vertices. An event is
// emitted only when the edge is new in either direction.
func (g *Graph) AddEdge(src, dst any) (Node, Node, error) {
	if src == nil || dst == nil {
		return Node{}, Node{}, ErrMissingEndpoint
	}
	s := g.AddVertex(src)
	d := g.AddVertex(dst)
	sv, dv := g.vertices[s.ID], g.vertices[d.ID]

	existed := sv.isAdjacent(d.ID) || dv.isAdjacent(s.ID)

	sv.addAdjacent(d.ID)
	if !g.Directed() {
		dv.addAdjacent(s.ID)
	}
	if !existed {
		g.emitAddEdge(s, d)
	}
	return s, d, nil
}

// RemoveEdge disconnects src from dst. It reports whether both endpoints
// exist.
func (g *Graph) RemoveEdge(src, dst any) bool {
	sv, ok := g.vertices[Format(src)]
	if !ok {
		return false
	}
	dv, ok := g.vertices[Format(dst)]
	if !ok {
		return false
	}
	sv.removeAdjacent(dv.node.ID)
	if !g.Directed() {
		dv.removeAdjacent(sv.node.ID)
	}
	g.emitRemoveEdge(sv.node, dv.node)
	return true
}

// HasEdge reports whether dst is adjacent to src.
func (g *Graph) HasEdge(src, dst any) bool {
	sv, ok := g.vertices[Format(src)]
	if !ok {
		return false
	}
	return sv.isAdjacent(Format(dst))
}

// Neighbors returns the vertices adjacent to v in insertion order.
func (g *Graph) Neighbors(v any) []Node {
	vx, ok := g.vertices[Format(v)]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(vx.adj))
	for _, id := range vx.adj {
		out = append(out, g.vertices[id].node)
	}
	return out
}

// Vertices returns all vertices in insertion order.
func (g *Graph) Vertices() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.vertices[id].node)
	}
	return out
}

// Edges returns every edge once, ordered by source insertion order.
// Undirected edges are reported in the direction they were first seen.
func (g *Graph) Edges() [][2]Node {
	var out [][2]Node
	seen := make(map[[2]string]struct{})
	for _, id := range g.order {
		vx := g.vertices[id]
		for _, adj := range vx.adj {
			if !g.Directed() {
				if _, ok := seen[[2]string{adj, id}]; ok {
					continue
				}
			}
			seen[[2]string{id, adj}] = struct{}{}
			out = append(out, [2]Node{vx.node, g.vertices[adj].node})
		}
	}
	return out
}

// FromAdjacencyMatrix adds an edge (row+1, col+1) for every non-zero cell.
// Undirected graphs read only the upper triangle.
func (g *Graph) FromAdjacencyMatrix(matrix [][]float64) error {
	for r, row := range matrix {
		if len(row) != len(matrix) {
			return ErrInvalidMatrix
		}
		start := 0
		if !g.Directed() {
			start = r
		}
		for c := start; c < len(row); c++ {
			if row[c] == 0 {
				continue
			}
			if _, _, err := g.AddEdge(r+1, c+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// AdjacencyEntry is one row of an adjacency list.
type AdjacencyEntry struct {
	Vertex   any
	Adjacent []any
}

// FromAdjacencyList adds an edge from each entry's vertex to every adjacent
// value, in list order.
func (g *Graph) FromAdjacencyList(entries []AdjacencyEntry) error {
	for _, e := range entries {
		for _, adj := range e.Adjacent {
			if _, _, err := g.AddEdge(e.Vertex, adj); err != nil {
				return err
			}
		}
	}
	return nil
}
