package sandbox

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/protocol"
)

type methods map[string]func(goja.FunctionCall) goja.Value

// structureBindings returns the graph and tree constructors and enums.
func (a *Agent) structureBindings() map[string]any {
	return map[string]any{
		"Graph":            a.newGraph,
		"BinaryTree":       a.newTree(graph.KindBinaryTree),
		"BinarySearchTree": a.newTree(graph.KindBST),
		"BinaryTreeNode": func(call goja.ConstructorCall) *goja.Object {
			return a.nodeObject(graph.NewTreeNode(a.payload(call.Argument(0))))
		},
		"GraphType": a.enum(map[string]int{
			"DIRECTED":   int(graph.KindDirected),
			"UNDIRECTED": int(graph.KindUndirected),
			"BST":        int(graph.KindBST),
			"BT":         int(graph.KindBinaryTree),
		}),
		"ParentSide": a.enum(map[string]int{
			"LEFT":  int(graph.SideLeft),
			"RIGHT": int(graph.SideRight),
		}),
		"NodeAccessType": a.enum(map[string]int{
			"Access": int(graph.AccessRead),
			"Mark":   int(graph.AccessMark),
		}),
	}
}

func (a *Agent) enum(values map[string]int) *goja.Object {
	obj := a.vm.NewObject()
	for k, v := range values {
		_ = obj.Set(k, v)
	}
	return obj
}

func (a *Agent) define(obj *goja.Object, m methods) {
	for name, fn := range m {
		_ = obj.Set(name, fn)
	}
}

// track registers a structure created by the snippet so the agent reports
// its changes and exports it as a descriptor.
func (a *Agent) track(obj *goja.Object, s graph.Structure) {
	a.structures[obj] = s
	s.Subscribe(a.observer)
}

// throw raises err in the snippet as a thrown string.
func (a *Agent) throw(err error) {
	panic(a.vm.ToValue(err.Error()))
}

// payload converts a node payload argument. Tree node objects stand for
// their value.
func (a *Agent) payload(v goja.Value) any {
	if obj, ok := v.(*goja.Object); ok {
		if n, tracked := a.nodes[obj]; tracked {
			return n.Value()
		}
	}
	return a.export(v)
}

func (a *Agent) values(nodes []graph.Node) goja.Value {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = n.Value
	}
	return a.vm.ToValue(out)
}

func accessType(v goja.Value) graph.AccessType {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return graph.AccessRead
	}
	return graph.AccessType(v.ToInteger())
}

func (a *Agent) side(v goja.Value) *graph.ChildSide {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	s := graph.ChildSide(v.ToInteger())
	return &s
}

func (a *Agent) newGraph(call goja.ConstructorCall) *goja.Object {
	kind := graph.KindUndirected
	if arg := call.Argument(0); !goja.IsUndefined(arg) {
		kind = graph.Kind(arg.ToInteger())
	}
	g := graph.NewGraph(kind)
	obj := call.This
	a.track(obj, g)

	a.define(obj, methods{
		"addVertex": func(c goja.FunctionCall) goja.Value {
			return a.vm.ToValue(g.AddVertex(a.payload(c.Argument(0))).Value)
		},
		"removeVertex": func(c goja.FunctionCall) goja.Value {
			return a.vm.ToValue(g.RemoveVertex(a.payload(c.Argument(0))))
		},
		"addEdge": func(c goja.FunctionCall) goja.Value {
			if _, _, err := g.AddEdge(a.payload(c.Argument(0)), a.payload(c.Argument(1))); err != nil {
				a.throw(err)
			}
			return goja.Undefined()
		},
		"removeEdge": func(c goja.FunctionCall) goja.Value {
			return a.vm.ToValue(g.RemoveEdge(a.payload(c.Argument(0)), a.payload(c.Argument(1))))
		},
		"hasEdge": func(c goja.FunctionCall) goja.Value {
			return a.vm.ToValue(g.HasEdge(a.payload(c.Argument(0)), a.payload(c.Argument(1))))
		},
		"find": func(c goja.FunctionCall) goja.Value {
			n, ok := g.Find(a.payload(c.Argument(0)))
			if !ok {
				return goja.Undefined()
			}
			return a.vm.ToValue(n.Value)
		},
		"accessValue": func(c goja.FunctionCall) goja.Value {
			g.AccessValue(a.payload(c.Argument(0)), accessType(c.Argument(1)))
			return goja.Undefined()
		},
		"getAdjacents": func(c goja.FunctionCall) goja.Value {
			return a.values(g.Neighbors(a.payload(c.Argument(0))))
		},
		"vertices": func(goja.FunctionCall) goja.Value {
			return a.values(g.Vertices())
		},
		"size": func(goja.FunctionCall) goja.Value {
			return a.vm.ToValue(g.Len())
		},
		"isEmpty": func(goja.FunctionCall) goja.Value {
			return a.vm.ToValue(g.IsEmpty())
		},
		"empty": func(goja.FunctionCall) goja.Value {
			g.Empty()
			return goja.Undefined()
		},
		"hasDirectedEdges": func(goja.FunctionCall) goja.Value {
			return a.vm.ToValue(g.Directed())
		},
		"getType": func(goja.FunctionCall) goja.Value {
			return a.vm.ToValue(int(g.Descriptor().Kind))
		},
		"fromAdjacencyMatrix": func(c goja.FunctionCall) goja.Value {
			var matrix [][]float64
			if err := a.vm.ExportTo(c.Argument(0), &matrix); err != nil {
				a.throw(graph.ErrInvalidMatrix)
			}
			if err := g.FromAdjacencyMatrix(matrix); err != nil {
				a.throw(err)
			}
			return goja.Undefined()
		},
		"fromAdjacencyList": func(c goja.FunctionCall) goja.Value {
			if err := g.FromAdjacencyList(a.adjacencyList(c.Argument(0))); err != nil {
				a.throw(err)
			}
			return goja.Undefined()
		},
	})
	return nil
}

// adjacencyList reads {vertex: [adjacent, ...]}. Object keys are strings,
// so a key is read as a number when its adjacent values are numbers.
func (a *Agent) adjacencyList(v goja.Value) []graph.AdjacencyEntry {
	obj, ok := v.(*goja.Object)
	if !ok {
		a.throw(graph.ErrInvalidMatrix)
	}
	var entries []graph.AdjacencyEntry
	for _, key := range obj.Keys() {
		adj, _ := a.export(obj.Get(key)).([]any)
		var vertex any = key
		if len(adj) > 0 && isNumber(adj[0]) {
			if i, err := strconv.ParseInt(key, 10, 64); err == nil {
				vertex = i
			} else if f, err := strconv.ParseFloat(key, 64); err == nil {
				vertex = f
			}
		}
		entries = append(entries, graph.AdjacencyEntry{Vertex: vertex, Adjacent: adj})
	}
	return entries
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

func (a *Agent) newTree(kind graph.Kind) func(goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		k := kind
		if kind != graph.KindBST {
			if arg := call.Argument(0); !goja.IsUndefined(arg) {
				k = graph.Kind(arg.ToInteger())
			}
		}
		t := graph.NewTree(k)
		obj := call.This
		a.track(obj, t)

		a.define(obj, methods{
			"createRoot": func(c goja.FunctionCall) goja.Value {
				n, err := t.CreateRoot(a.payload(c.Argument(0)))
				if err != nil {
					a.throw(err)
				}
				return a.nodeValue(n)
			},
			"getRoot": func(goja.FunctionCall) goja.Value {
				return a.nodeValue(t.Root())
			},
			"add": func(c goja.FunctionCall) goja.Value {
				var parent any
				if p := c.Argument(1); !goja.IsUndefined(p) && !goja.IsNull(p) {
					parent = a.payload(p)
				}
				n, err := t.Add(a.payload(c.Argument(0)), parent, a.side(c.Argument(2)))
				if err != nil {
					a.throw(err)
				}
				return a.nodeValue(n)
			},
			"createNode": func(c goja.FunctionCall) goja.Value {
				return a.nodeValue(t.CreateNode(a.payload(c.Argument(0))))
			},
			"remove": func(c goja.FunctionCall) goja.Value {
				return a.vm.ToValue(t.Remove(a.payload(c.Argument(0))))
			},
			"find": func(c goja.FunctionCall) goja.Value {
				return a.nodeValue(t.Find(a.payload(c.Argument(0))))
			},
			"findNodeWithId": func(c goja.FunctionCall) goja.Value {
				return a.nodeValue(t.FindByID(c.Argument(0).String()))
			},
			"accessValue": func(c goja.FunctionCall) goja.Value {
				t.AccessValue(a.payload(c.Argument(0)), accessType(c.Argument(1)))
				return goja.Undefined()
			},
			"size": func(goja.FunctionCall) goja.Value {
				return a.vm.ToValue(t.Len())
			},
			"isEmpty": func(goja.FunctionCall) goja.Value {
				return a.vm.ToValue(t.IsEmpty())
			},
			"empty": func(goja.FunctionCall) goja.Value {
				t.Empty()
				return goja.Undefined()
			},
			"getType": func(goja.FunctionCall) goja.Value {
				return a.vm.ToValue(int(t.Descriptor().Kind))
			},
		})
		return nil
	}
}

// nodeValue returns the object standing for n, null for nil.
func (a *Agent) nodeValue(n *graph.TreeNode) goja.Value {
	if n == nil {
		return goja.Null()
	}
	return a.nodeObject(n)
}

// nodeObject returns the snippet object for n, creating it once.
func (a *Agent) nodeObject(n *graph.TreeNode) *goja.Object {
	if obj, ok := a.nodeObjs[n]; ok {
		return obj
	}
	d := &treeNodeObject{agent: a, node: n, extra: make(map[string]goja.Value)}
	d.methods = d.bind()
	obj := a.vm.NewDynamicObject(d)
	a.nodeObjs[n] = obj
	a.nodes[obj] = n
	return obj
}

// childArg converts an assigned child: null detaches, a node object links
// that node, any other value links a new node holding it.
func (a *Agent) childArg(v goja.Value) *graph.TreeNode {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if n, tracked := a.nodes[obj]; tracked {
			return n
		}
	}
	return graph.NewTreeNode(a.export(v))
}

// treeNodeObject is the dynamic object behind BinaryTreeNode. Assigning
// left or right links the child through the owning tree.
type treeNodeObject struct {
	agent   *Agent
	node    *graph.TreeNode
	methods map[string]goja.Value
	extra   map[string]goja.Value
}

var nodeKeys = []string{"value", "left", "right", "parent"}

func (o *treeNodeObject) bind() map[string]goja.Value {
	a := o.agent
	m := methods{
		"createChild": func(c goja.FunctionCall) goja.Value {
			child := graph.NewTreeNode(a.payload(c.Argument(1)))
			o.setChild(c.Argument(0), child)
			return a.nodeValue(child)
		},
		"setChild": func(c goja.FunctionCall) goja.Value {
			o.setChild(c.Argument(0), a.childArg(c.Argument(1)))
			return goja.Undefined()
		},
		"isRoot": func(goja.FunctionCall) goja.Value {
			return a.vm.ToValue(o.node.Parent() == nil)
		},
		"isLeftChild": func(goja.FunctionCall) goja.Value {
			return a.vm.ToValue(o.node.Parent() != nil && o.node.Side() == graph.SideLeft)
		},
		"isRightChild": func(goja.FunctionCall) goja.Value {
			return a.vm.ToValue(o.node.Parent() != nil && o.node.Side() == graph.SideRight)
		},
		"isOnlyChild": func(goja.FunctionCall) goja.Value {
			p := o.node.Parent()
			return a.vm.ToValue(p == nil || p.Left() == nil || p.Right() == nil)
		},
	}
	out := make(map[string]goja.Value, len(m))
	for name, fn := range m {
		out[name] = a.vm.ToValue(fn)
	}
	return out
}

func (o *treeNodeObject) setChild(sideArg goja.Value, child *graph.TreeNode) {
	side := graph.SideLeft
	if s := o.agent.side(sideArg); s != nil {
		side = *s
	}
	o.link(side, child)
}

func (o *treeNodeObject) link(side graph.ChildSide, child *graph.TreeNode) {
	t := o.node.Tree()
	if t == nil {
		o.agent.throw(graph.ErrDetachedNode)
	}
	if err := t.SetChild(o.node, side, child); err != nil {
		o.agent.throw(err)
	}
}

// Get implements goja.DynamicObject.
func (o *treeNodeObject) Get(key string) goja.Value {
	a := o.agent
	switch key {
	case "value":
		return a.vm.ToValue(o.node.Value())
	case "left":
		return a.nodeValue(o.node.Left())
	case "right":
		return a.nodeValue(o.node.Right())
	case "parent":
		return a.nodeValue(o.node.Parent())
	case "multiplicity":
		return a.vm.ToValue(o.node.Multiplicity())
	}
	if m, ok := o.methods[key]; ok {
		return m
	}
	return o.extra[key]
}

// Set implements goja.DynamicObject.
func (o *treeNodeObject) Set(key string, val goja.Value) bool {
	switch key {
	case "left":
		o.link(graph.SideLeft, o.agent.childArg(val))
	case "right":
		o.link(graph.SideRight, o.agent.childArg(val))
	case "value", "parent", "multiplicity":
		return false
	default:
		o.extra[key] = val
	}
	return true
}

// Has implements goja.DynamicObject.
func (o *treeNodeObject) Has(key string) bool {
	switch key {
	case "value", "left", "right", "parent", "multiplicity":
		return true
	}
	if _, ok := o.methods[key]; ok {
		return true
	}
	_, ok := o.extra[key]
	return ok
}

// Delete implements goja.DynamicObject.
func (o *treeNodeObject) Delete(key string) bool {
	if _, ok := o.extra[key]; ok {
		delete(o.extra, key)
		return true
	}
	return false
}

// Keys implements goja.DynamicObject.
func (o *treeNodeObject) Keys() []string {
	keys := append([]string(nil), nodeKeys...)
	for k := range o.extra {
		keys = append(keys, k)
	}
	return keys
}

// structureObserver posts structural changes of snippet structures.
type structureObserver struct {
	agent *Agent
}

func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (o *structureObserver) OnAccessNode(d graph.Descriptor, n graph.Node, access graph.AccessType) {
	o.agent.notify(protocol.CmdOnAccessNode, d, n, access)
}

func (o *structureObserver) OnAddNode(d graph.Descriptor, n graph.Node, parent *graph.Node, side *graph.ChildSide) {
	o.agent.notify(protocol.CmdOnAddNode, d, n, optional(parent), optional(side))
}

func (o *structureObserver) OnRemoveNode(d graph.Descriptor, n graph.Node) {
	o.agent.notify(protocol.CmdOnRemoveNode, d, n)
}

func (o *structureObserver) OnAddEdge(d graph.Descriptor, src, dst graph.Node) {
	o.agent.notify(protocol.CmdOnAddEdge, d, src, dst)
}

func (o *structureObserver) OnRemoveEdge(d graph.Descriptor, src, dst graph.Node) {
	o.agent.notify(protocol.CmdOnRemoveEdge, d, src, dst)
}
