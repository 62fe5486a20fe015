package sandbox

import (
	"strconv"

	"github.com/dop251/goja"
)

// Circular replaces a value that refers back to one of its ancestors.
const Circular = "[Circular]"

// export converts a snippet value into plain Go data that is safe to hand
// to another goroutine: nil, bool, int64, float64, string, []any,
// map[string]any, graph.Descriptor or graph.Node. Functions are dropped.
func (a *Agent) export(v goja.Value) any {
	return a.exportValue(v, make(map[*goja.Object]bool))
}

func (a *Agent) exportValue(v goja.Value, ancestors map[*goja.Object]bool) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	if s, ok := a.structures[obj]; ok {
		return s.Descriptor()
	}
	if n, ok := a.nodes[obj]; ok {
		return n.Node()
	}
	if isFunction(obj) {
		return nil
	}
	if ancestors[obj] {
		return Circular
	}
	ancestors[obj] = true
	defer delete(ancestors, obj)

	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		out := make([]any, n)
		for i := range out {
			el := obj.Get(strconv.Itoa(i))
			if isFunction(el) {
				continue
			}
			out[i] = a.exportValue(el, ancestors)
		}
		return out
	case "Object":
		keys := obj.Keys()
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			el := obj.Get(k)
			if isFunction(el) {
				continue
			}
			out[k] = a.exportValue(el, ancestors)
		}
		return out
	default:
		return obj.String()
	}
}

func isFunction(v goja.Value) bool {
	if v == nil {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}
