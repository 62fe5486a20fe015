package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliasesResolve(t *testing.T) {
	a := NewAliases()
	x := Key{Scope: "global", Name: "x"}
	fa := Key{Scope: "global.!f", Name: "a"}
	gb := Key{Scope: "global.!f.!g", Name: "b"}

	a.Link(fa, x)
	a.Link(gb, fa)
	a.Link(x, x)

	assert.Equal(t, x, a.Resolve(gb))
	assert.Equal(t, x, a.Resolve(fa))
	assert.Equal(t, x, a.Resolve(x))
	assert.Equal(t, 2, a.Len())

	to, ok := a.Target(gb)
	assert.True(t, ok)
	assert.Equal(t, fa, to)
}

func TestAliasesDropTrailingLocal(t *testing.T) {
	a := NewAliases()
	x := Key{Scope: "global", Name: "x"}
	a.Link(Key{Scope: "global.!f", Name: "a"}, x)

	assert.Equal(t, x, a.Resolve(Key{Scope: "global.!f.local.local", Name: "a"}))

	miss := Key{Scope: "global.!f.local", Name: "z"}
	assert.Equal(t, miss, a.Resolve(miss))
}

func TestAliasesCycle(t *testing.T) {
	a := NewAliases()
	p := Key{Scope: "s", Name: "p"}
	q := Key{Scope: "s", Name: "q"}
	a.Link(p, q)
	a.Link(q, p)

	assert.Equal(t, q, a.Resolve(p))
}

func TestAliasesDropFrame(t *testing.T) {
	a := NewAliases()
	x := Key{Scope: "global", Name: "x"}
	a.Link(Key{Scope: "global.!f", Name: "a"}, x)
	a.Link(Key{Scope: "global.!f.!g", Name: "b"}, x)
	a.Link(Key{Scope: "global.!fx", Name: "c"}, x)

	a.DropFrame("global.!f")
	assert.Equal(t, 1, a.Len())

	a.Unlink(Key{Scope: "global.!fx", Name: "c"})
	assert.Equal(t, 0, a.Len())

	a.Link(Key{Scope: "s", Name: "p"}, x)
	a.Reset()
	assert.Equal(t, 0, a.Len())
}
