package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sidePtr(s ChildSide) *ChildSide { return &s }

func preorder(t *Tree) []string {
	var ids []string
	for _, n := range t.Nodes() {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestBSTAddAndFind(t *testing.T) {
	tree := NewTree(KindBST)
	rec := &recorder{}
	tree.Subscribe(rec)

	for _, v := range []int{5, 3, 8, 4} {
		_, err := tree.Add(v, nil, nil)
		require.NoError(t, err)
	}

	want := []string{
		"add 5",
		"add 3 left of 5", "edge 5-3",
		"add 8 right of 5", "edge 5-8",
		"add 4 right of 3", "edge 3-4",
	}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	n := tree.Find(4)
	require.NotNil(t, n)
	assert.Equal(t, SideRight, n.Side())
	assert.Equal(t, "3", n.Parent().Node().ID)
	assert.Nil(t, tree.Find(42))
}

func TestBSTMultiplicity(t *testing.T) {
	tree := NewTree(KindBST)
	rec := &recorder{}
	_, _ = tree.Add(5, nil, nil)
	tree.Subscribe(rec)

	n, err := tree.Add(5, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n.Multiplicity())
	assert.Empty(t, rec.events)

	assert.True(t, tree.Remove(5))
	assert.Empty(t, rec.events)
	assert.Equal(t, 1, n.Multiplicity())

	assert.True(t, tree.Remove(5))
	assert.Equal(t, []string{"remove 5"}, rec.events)
	assert.True(t, tree.IsEmpty())
}

func TestBSTRemoveSplice(t *testing.T) {
	tree := NewTree(KindBST)
	for _, v := range []int{50, 30, 70, 20, 40, 60, 80} {
		_, _ = tree.Add(v, nil, nil)
	}

	require.True(t, tree.Remove(50))
	// The left subtree hangs under the leftmost node of the right subtree.
	assert.Equal(t, []string{"70", "60", "30", "20", "40", "80"}, preorder(tree))
	assert.Equal(t, "70", tree.Root().Node().ID)
	assert.Nil(t, tree.Root().Parent())
	assert.False(t, tree.Remove(50))
}

func TestBinaryTreeAdd(t *testing.T) {
	tree := NewTree(KindBinaryTree)
	root, err := tree.CreateRoot(1)
	require.NoError(t, err)

	_, err = tree.Add(2, nil, nil)
	assert.ErrorIs(t, err, ErrParentRequired)

	_, err = tree.Add(2, 1, sidePtr(SideRight))
	require.NoError(t, err)
	_, err = tree.Add(3, 1, sidePtr(SideRight))
	assert.ErrorIs(t, err, ErrSideOccupied)
	_, err = tree.Add(3, 99, sidePtr(SideLeft))
	assert.ErrorIs(t, err, ErrNodeNotFound)

	again, err := tree.CreateRoot(7)
	require.NoError(t, err)
	assert.Same(t, root, again)

	assert.Equal(t, []string{"1", "2"}, preorder(tree))
}

func TestBSTCreateRootRejected(t *testing.T) {
	_, err := NewTree(KindBST).CreateRoot(1)
	assert.ErrorIs(t, err, ErrExplicitRoot)
}

func TestSetChild(t *testing.T) {
	tree := NewTree(KindBST)
	root := tree.CreateNode(10)
	rec := &recorder{}
	tree.Subscribe(rec)

	assert.ErrorIs(t, tree.SetChild(root, SideLeft, NewTreeNode(20)), ErrOrderViolation)
	assert.ErrorIs(t, tree.SetChild(NewTreeNode(1), SideLeft, NewTreeNode(0)), ErrDetachedNode)

	sub := NewTreeNode(5)
	sub.setChildPtr(SideLeft, NewTreeNode(2))
	require.NoError(t, tree.SetChild(root, SideLeft, sub))
	assert.ErrorIs(t, tree.SetChild(root, SideRight, sub), ErrAlreadyAttached)

	require.NoError(t, tree.SetChild(root, SideLeft, nil))

	want := []string{
		"add 5 left of 10", "edge 10-5",
		"add 2 left of 5", "edge 5-2",
		"cut 10-5",
	}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, sub.Tree())
	assert.Equal(t, 1, tree.Len())
}

func TestTreeAccessValue(t *testing.T) {
	tree := NewTree(KindBinaryTree)
	_, _ = tree.CreateRoot("a")
	rec := &recorder{}
	tree.Subscribe(rec)

	assert.True(t, tree.AccessValue("a", AccessRead))
	assert.False(t, tree.AccessValue("b", AccessRead))
	assert.Equal(t, []string{"access a"}, rec.events)
}

func TestTreeMirror(t *testing.T) {
	tree := NewTree(KindBST, WithName("bst"))
	m := NewMirror(tree.Descriptor())
	rec := &recorder{mirror: m}
	tree.Subscribe(rec)

	for _, v := range []int{8, 4, 12, 2, 6, 10, 14, 4} {
		_, _ = tree.Add(v, nil, nil)
	}
	tree.Remove(4)
	tree.Remove(4)
	tree.Remove(8)
	extra := NewTreeNode(1)
	require.NoError(t, tree.SetChild(tree.Find(2), SideLeft, extra))
	require.NoError(t, tree.SetChild(tree.Find(12), SideRight, nil))
	rec.assertMirrorOK(t)

	assert.Equal(t, preorder(tree), preorder(m.Tree()))
	assert.Equal(t, "bst", m.Structure().Descriptor().Name)
	assert.True(t, m.Contains("1"))
	assert.False(t, m.Contains("14"))
}

func TestMirrorRejectsUnknownParent(t *testing.T) {
	m := NewMirror(Descriptor{ID: "t", Kind: KindBinaryTree})
	parent := NewNode(1)
	err := m.AddNode(NewNode(2), &parent, sidePtr(SideLeft))
	assert.ErrorIs(t, err, ErrNodeNotFound)

	require.NoError(t, m.AddNode(NewNode(1), nil, nil))
	assert.ErrorIs(t, m.AddNode(NewNode(3), nil, nil), ErrParentRequired)
}
