package graph

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is an Observer that records events as compact strings.
type recorder struct {
	events []string
	mirror *Mirror
	errs   []error
}

func (r *recorder) OnAccessNode(_ Descriptor, n Node, access AccessType) {
	r.events = append(r.events, fmt.Sprintf("%s %s", access, n.ID))
}

func (r *recorder) OnAddNode(_ Descriptor, n Node, parent *Node, side *ChildSide) {
	if parent == nil {
		r.events = append(r.events, "add "+n.ID)
	} else {
		r.events = append(r.events, fmt.Sprintf("add %s %s of %s", n.ID, side, parent.ID))
	}
	if r.mirror != nil {
		r.errs = append(r.errs, r.mirror.AddNode(n, parent, side))
	}
}

func (r *recorder) OnRemoveNode(_ Descriptor, n Node) {
	r.events = append(r.events, "remove "+n.ID)
	if r.mirror != nil {
		r.errs = append(r.errs, r.mirror.RemoveNode(n))
	}
}

func (r *recorder) OnAddEdge(_ Descriptor, src, dst Node) {
	r.events = append(r.events, fmt.Sprintf("edge %s-%s", src.ID, dst.ID))
	if r.mirror != nil {
		r.errs = append(r.errs, r.mirror.AddEdge(src, dst))
	}
}

func (r *recorder) OnRemoveEdge(_ Descriptor, src, dst Node) {
	r.events = append(r.events, fmt.Sprintf("cut %s-%s", src.ID, dst.ID))
	if r.mirror != nil {
		r.errs = append(r.errs, r.mirror.RemoveEdge(src, dst))
	}
}

func (r *recorder) assertMirrorOK(t *testing.T) {
	t.Helper()
	for _, err := range r.errs {
		require.NoError(t, err)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{1, "1"},
		{int64(7), "7"},
		{3.0, "3"},
		{2.5, "2.5"},
		{"a", "a"},
		{true, "true"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in))
	}
}

func TestLess(t *testing.T) {
	assert.True(t, Less(2, 10))
	assert.True(t, Less(int64(2), 10.5))
	assert.False(t, Less(10, 2))
	assert.True(t, Less("10", "2"))
}

func TestGraphEvents(t *testing.T) {
	g := NewGraph(KindUndirected)
	rec := &recorder{}
	g.Subscribe(rec)

	_, _, err := g.AddEdge(1, 2)
	require.NoError(t, err)
	_, _, err = g.AddEdge(2, 1)
	require.NoError(t, err)
	g.AddVertex(3)
	g.AccessValue(2, AccessMark)
	assert.False(t, g.AccessValue(9, AccessRead))
	g.RemoveEdge(1, 2)
	g.RemoveVertex(3)

	want := []string{
		"add 1", "add 2", "edge 1-2",
		"add 3",
		"mark 2",
		"cut 1-2",
		"remove 3",
	}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestGraphMissingEndpoint(t *testing.T) {
	g := NewGraph(KindDirected)
	_, _, err := g.AddEdge(1, nil)
	assert.ErrorIs(t, err, ErrMissingEndpoint)
	assert.True(t, g.IsEmpty())
}

func TestGraphDirectedNeighbors(t *testing.T) {
	g := NewGraph(KindDirected)
	_, _, _ = g.AddEdge("a", "b")
	_, _, _ = g.AddEdge("a", "c")
	_, _, _ = g.AddEdge("b", "a")

	assert.True(t, g.Directed())
	assert.Equal(t, []Node{NewNode("b"), NewNode("c")}, g.Neighbors("a"))
	assert.Equal(t, []Node{NewNode("a")}, g.Neighbors("b"))
	assert.Empty(t, g.Neighbors("c"))
	assert.True(t, g.HasEdge("a", "b"))
	assert.False(t, g.HasEdge("c", "a"))
}

func TestGraphRemoveVertexDropsEdges(t *testing.T) {
	g := NewGraph(KindUndirected)
	_, _, _ = g.AddEdge(1, 2)
	_, _, _ = g.AddEdge(2, 3)

	require.True(t, g.RemoveVertex(2))
	assert.Empty(t, g.Neighbors(1))
	assert.Empty(t, g.Edges())
	assert.Equal(t, 2, g.Len())
	assert.False(t, g.RemoveVertex(2))
}

func TestGraphFromAdjacencyMatrix(t *testing.T) {
	matrix := [][]float64{
		{0, 1, 1},
		{1, 0, 0},
		{1, 0, 0},
	}

	g := NewGraph(KindUndirected)
	require.NoError(t, g.FromAdjacencyMatrix(matrix))
	assert.Len(t, g.Edges(), 2)

	d := NewGraph(KindDirected)
	require.NoError(t, d.FromAdjacencyMatrix(matrix))
	assert.Len(t, d.Edges(), 4)

	err := NewGraph(KindDirected).FromAdjacencyMatrix([][]float64{{0, 1}})
	assert.ErrorIs(t, err, ErrInvalidMatrix)
}

func TestGraphFromAdjacencyList(t *testing.T) {
	g := NewGraph(KindDirected)
	err := g.FromAdjacencyList([]AdjacencyEntry{
		{Vertex: "x", Adjacent: []any{"y", "z"}},
		{Vertex: "y", Adjacent: []any{"z"}},
	})
	require.NoError(t, err)

	got := make([]string, 0)
	for _, e := range g.Edges() {
		got = append(got, e[0].ID+">"+e[1].ID)
	}
	assert.Equal(t, []string{"x>y", "x>z", "y>z"}, got)
}

func TestGraphMirror(t *testing.T) {
	g := NewGraph(KindUndirected, WithName("g"))
	m := NewMirror(g.Descriptor())
	rec := &recorder{mirror: m}
	g.Subscribe(rec)

	_, _, _ = g.AddEdge(1, 2)
	_, _, _ = g.AddEdge(2, 3)
	g.RemoveVertex(1)
	rec.assertMirrorOK(t)

	assert.Equal(t, g.Descriptor(), m.Structure().Descriptor())
	assert.Equal(t, g.Vertices(), m.Graph().Vertices())
	assert.Equal(t, g.Edges(), m.Graph().Edges())
	assert.True(t, m.Contains("2"))
	assert.False(t, m.Contains("1"))
}

func TestSubscribeTwice(t *testing.T) {
	g := NewGraph(KindUndirected)
	rec := &recorder{}
	g.Subscribe(rec)
	g.Subscribe(rec)
	g.AddVertex(1)
	assert.Len(t, rec.events, 1)

	g.Unsubscribe(rec)
	g.AddVertex(2)
	assert.Len(t, rec.events, 1)
}
