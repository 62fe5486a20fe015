package instrument

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/stepviz/internal/protocol"
)

// Generated code uses only these names.
const (
	fnMarkLine      = "markcl"
	fnForceMarkLine = "forcemarkcl"
	fnStartScope    = "startScope"
	fnEndScope      = "endScope"
	fnSetVar        = "setVar"
	fnPushParams    = "pushParams"
	fnPopParams     = "popParams"
)

// InjectedNames lists every function the instrumented code calls that the
// sandbox must provide, in binding order.
var InjectedNames = []string{
	fnMarkLine, fnForceMarkLine, fnStartScope, fnEndScope, fnSetVar,
	fnPushParams, fnPopParams, "alertWrap", "confirmWrap", "promptWrap",
}

const (
	localName  = "local"
	globalName = "global"
	noDepth    = math.MaxInt32
)

// insertion is text spliced into the source at an offset. At equal offsets
// tails go first, innermost first, then heads, outermost first.
type insertion struct {
	at    int
	tail  bool
	depth int
	mark  bool
	seq   int
	text  string
}

func sortInsertions(ins []insertion) {
	sort.SliceStable(ins, func(i, j int) bool {
		a, b := ins[i], ins[j]
		if a.at != b.at {
			return a.at < b.at
		}
		if a.tail != b.tail {
			return a.tail
		}
		if a.depth != b.depth {
			if a.tail {
				return a.depth > b.depth
			}
			return a.depth < b.depth
		}
		if a.mark != b.mark {
			return a.mark
		}
		return a.seq < b.seq
	})
}

// apply splices sorted insertions into src.
func apply(src string, ins []insertion) string {
	var b strings.Builder
	size := len(src)
	for _, in := range ins {
		size += len(in.text)
	}
	b.Grow(size)

	last := 0
	for _, in := range ins {
		b.WriteString(src[last:in.at])
		b.WriteString(in.text)
		last = in.at
	}
	b.WriteString(src[last:])
	return b.String()
}

// span is an inclusive offset range.
type span struct {
	s, e int
}

// subtract returns the parts of [s, e] not covered by holes.
func subtract(s, e int, holes []span) []span {
	sort.Slice(holes, func(i, j int) bool { return holes[i].s < holes[j].s })
	var out []span
	cur := s
	for _, h := range holes {
		if h.e < cur || h.s > e {
			continue
		}
		if h.s > cur {
			out = append(out, span{cur, h.s - 1})
		}
		if h.e+1 > cur {
			cur = h.e + 1
		}
	}
	if cur <= e {
		out = append(out, span{cur, e})
	}
	return out
}

func inZone(zones []span, at int) bool {
	for _, z := range zones {
		if at >= z.s && at <= z.e {
			return true
		}
	}
	return false
}

func call(fn string, args ...string) string {
	return ";" + fn + "(" + strings.Join(args, ", ") + ");"
}

func quote(s string) string {
	return "'" + s + "'"
}

func markText(line int) string {
	return call(fnMarkLine, strconv.Itoa(line))
}

func forceMarkText(line int) string {
	return call(fnForceMarkLine, strconv.Itoa(line))
}

func startScopeText(name string) string {
	return call(fnStartScope, quote(name))
}

func endScopeText(name string) string {
	return call(fnEndScope, quote(name))
}

func setVarText(name, source string) string {
	if source == "" {
		return call(fnSetVar, quote(name), name)
	}
	return call(fnSetVar, quote(name), name, quote(source))
}

func pairsLiteral(pairs []protocol.ParamPair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = "[" + quote(p.Param) + ", " + quote(p.Arg) + "]"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func pushParamsText(pairs []protocol.ParamPair) string {
	return call(fnPushParams, pairsLiteral(pairs))
}

func popParamsText(pairs []protocol.ParamPair) string {
	return call(fnPopParams, pairsLiteral(pairs))
}

// scopeHead opens a scope whose body runs inside try so the matching
// scopeTail runs on every exit path.
func scopeHead(name, extra string) string {
	return startScopeText(name) + extra + "try{"
}

func scopeTail(name string) string {
	return "}finally{" + endScopeText(name) + "}"
}
