package graph

// TreeNode is a node of a binary tree. A node created with NewTreeNode is
// detached until it is linked under a node that belongs to a tree.
type TreeNode struct {
	node         Node
	left, right  *TreeNode
	parent       *TreeNode
	side         ChildSide
	multiplicity int
	tree         *Tree
}

// NewTreeNode creates a detached node.
func NewTreeNode(v any) *TreeNode {
	return &TreeNode{node: NewNode(v), multiplicity: 1}
}

// Node returns the value-level view of the node.
func (n *TreeNode) Node() Node { return n.node }

// Value returns the node payload.
func (n *TreeNode) Value() any { return n.node.Value }

// Left returns the left child.
func (n *TreeNode) Left() *TreeNode { return n.left }

// Right returns the right child.
func (n *TreeNode) Right() *TreeNode { return n.right }

// Parent returns the parent node, nil for roots and detached nodes.
func (n *TreeNode) Parent() *TreeNode { return n.parent }

// Side returns the side of the node under its parent.
func (n *TreeNode) Side() ChildSide { return n.side }

// Multiplicity returns how many times the value was added.
func (n *TreeNode) Multiplicity() int { return n.multiplicity }

// Tree returns the owning tree, nil when detached.
func (n *TreeNode) Tree() *Tree { return n.tree }

// Child returns the child on side.
func (n *TreeNode) Child(side ChildSide) *TreeNode {
	if side == SideLeft {
		return n.left
	}
	return n.right
}

func (n *TreeNode) setChildPtr(side ChildSide, c *TreeNode) {
	if side == SideLeft {
		n.left = c
	} else {
		n.right = c
	}
	if c != nil {
		c.parent = n
		c.side = side
	}
}

// Tree is a binary tree or a binary search tree.
type Tree struct {
	observable

	root *TreeNode
}

// NewTree creates an empty tree of kind KindBST or KindBinaryTree. Other
// kinds fall back to KindBinaryTree.
func NewTree(kind Kind, opts ...Option) *Tree {
	if kind != KindBST {
		kind = KindBinaryTree
	}
	t := &Tree{observable: newObservable(kind, "")}
	for _, opt := range opts {
		opt(&t.observable)
	}
	return t
}

// Ordered reports whether the tree keeps binary search order.
func (t *Tree) Ordered() bool {
	return t.desc.Kind == KindBST
}

// Root returns the root node.
func (t *Tree) Root() *TreeNode {
	return t.root
}

// IsEmpty reports whether the tree has no root.
func (t *Tree) IsEmpty() bool {
	return t.root == nil
}

// Empty drops every node without emitting events.
func (t *Tree) Empty() {
	t.root = nil
}

// CreateRoot creates the root of a binary tree, or returns the existing one.
func (t *Tree) CreateRoot(v any) (*TreeNode, error) {
	if t.Ordered() {
		return nil, ErrExplicitRoot
	}
	if t.root != nil {
		return t.root, nil
	}
	return t.plantRoot(v), nil
}

// CreateNode returns the new root when the tree is empty, or a detached node
// to be linked with SetChild.
func (t *Tree) CreateNode(v any) *TreeNode {
	if t.root == nil {
		return t.plantRoot(v)
	}
	return NewTreeNode(v)
}

func (t *Tree) plantRoot(v any) *TreeNode {
	t.root = NewTreeNode(v)
	t.root.tree = t
	t.emitAddNode(t.root.node, nil, nil)
	return t.root
}

// Add inserts v. Binary search trees place it by order and ignore parent and
// side. Binary trees require both once a root exists. Adding an existing
// value increments its multiplicity and emits nothing.
func (t *Tree) Add(v any, parent any, side *ChildSide) (*TreeNode, error) {
	if t.root == nil {
		return t.plantRoot(v), nil
	}

	if t.Ordered() {
		found, future := t.search(v)
		if found != nil {
			found.multiplicity++
			return found, nil
		}
		s := SideRight
		if Less(v, future.node.Value) {
			s = SideLeft
		}
		return t.link(future, s, NewTreeNode(v)), nil
	}

	if parent == nil || side == nil {
		return nil, ErrParentRequired
	}
	if found := t.findWhere(t.root, func(n *TreeNode) bool { return n.node.ID == Format(v) }); found != nil {
		found.multiplicity++
		return found, nil
	}
	p := t.Find(parent)
	if p == nil {
		return nil, ErrNodeNotFound
	}
	if p.Child(*side) != nil {
		return nil, ErrSideOccupied
	}
	return t.link(p, *side, NewTreeNode(v)), nil
}

// SetChild links child under parent on side, replacing and detaching any
// subtree already there. A nil child only detaches. Binary search trees
// reject children that break the ordering convention.
func (t *Tree) SetChild(parent *TreeNode, side ChildSide, child *TreeNode) error {
	if parent == nil || parent.tree != t {
		return ErrDetachedNode
	}
	if child != nil {
		if child.parent != nil || child == t.root || child.tree != nil {
			return ErrAlreadyAttached
		}
		if t.Ordered() {
			if (side == SideLeft && Less(parent.node.Value, child.node.Value)) ||
				(side == SideRight && Less(child.node.Value, parent.node.Value)) {
				return ErrOrderViolation
			}
		}
	}

	if old := parent.Child(side); old != nil {
		t.detach(old)
	}
	if child != nil {
		t.link(parent, side, child)
	}
	return nil
}

// link attaches child and its detached descendants, reporting each in
// preorder.
func (t *Tree) link(parent *TreeNode, side ChildSide, child *TreeNode) *TreeNode {
	parent.setChildPtr(side, child)
	t.announce(child)
	return child
}

func (t *Tree) announce(n *TreeNode) {
	n.tree = t
	pn := n.parent.node
	side := n.side
	t.emitAddNode(n.node, &pn, &side)
	t.emitAddEdge(pn, n.node)
	if n.left != nil {
		t.announce(n.left)
	}
	if n.right != nil {
		t.announce(n.right)
	}
}

// detach cuts the subtree rooted at n from its parent. The cut is reported
// as a removed edge.
func (t *Tree) detach(n *TreeNode) {
	p := n.parent
	if p == nil {
		return
	}
	p.setChildPtr(n.side, nil)
	n.parent = nil
	release(n)
	t.emitRemoveEdge(p.node, n.node)
}

func release(n *TreeNode) {
	if n == nil {
		return
	}
	n.tree = nil
	release(n.left)
	release(n.right)
}

// Remove deletes one occurrence of v. A node with multiplicity above one is
// decremented silently; otherwise it is spliced out and reported.
func (t *Tree) Remove(v any) bool {
	n := t.Find(v)
	if n == nil {
		return false
	}
	if n.multiplicity > 1 {
		n.multiplicity--
		return true
	}
	t.splice(n)
	return true
}

// splice removes n and joins its subtrees: the left subtree moves under the
// leftmost node of the right subtree, which then takes n's place. Only the
// node removal is reported; a mirror replays the same splice.
func (t *Tree) splice(n *TreeNode) {
	t.emitRemoveNode(n.node)

	joined := n.left
	if n.right != nil {
		lm := n.right
		for lm.left != nil {
			lm = lm.left
		}
		lm.setChildPtr(SideLeft, n.left)
		joined = n.right
	}

	if n == t.root {
		t.root = joined
		if joined != nil {
			joined.parent = nil
		}
	} else {
		n.parent.setChildPtr(n.side, joined)
	}
	n.parent, n.left, n.right, n.tree = nil, nil, nil, nil
}

// Find returns the node holding v. Binary search trees search by order,
// binary trees exhaustively in preorder.
func (t *Tree) Find(v any) *TreeNode {
	if t.Ordered() {
		found, _ := t.search(v)
		return found
	}
	id := Format(v)
	return t.findWhere(t.root, func(n *TreeNode) bool { return n.node.ID == id })
}

// FindByID returns the node with the given id anywhere in the tree.
func (t *Tree) FindByID(id string) *TreeNode {
	return t.findWhere(t.root, func(n *TreeNode) bool { return n.node.ID == id })
}

// AccessValue emits an access event for the node holding v.
func (t *Tree) AccessValue(v any, access AccessType) bool {
	n := t.Find(v)
	if n == nil {
		return false
	}
	t.emitAccess(n.node, access)
	return true
}

// Nodes returns every node in preorder.
func (t *Tree) Nodes() []Node {
	var out []Node
	t.walk(t.root, func(n *TreeNode) { out = append(out, n.node) })
	return out
}

// Len returns the number of distinct nodes.
func (t *Tree) Len() int {
	count := 0
	t.walk(t.root, func(*TreeNode) { count++ })
	return count
}

func (t *Tree) walk(n *TreeNode, fn func(*TreeNode)) {
	if n == nil {
		return
	}
	fn(n)
	t.walk(n.left, fn)
	t.walk(n.right, fn)
}

func (t *Tree) findWhere(n *TreeNode, match func(*TreeNode) bool) *TreeNode {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	if found := t.findWhere(n.left, match); found != nil {
		return found
	}
	return t.findWhere(n.right, match)
}

// search walks the ordered tree and returns the node holding v, or the node
// it would hang under.
func (t *Tree) search(v any) (found, parent *TreeNode) {
	id := Format(v)
	n := t.root
	for n != nil {
		if n.node.ID == id {
			return n, parent
		}
		parent = n
		if Less(v, n.node.Value) {
			n = n.left
		} else {
			n = n.right
		}
	}
	return nil, parent
}
