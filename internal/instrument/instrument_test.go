package instrument

import (
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/dop251/goja/parser"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stepviz/internal/protocol"
)

func instrument(t *testing.T, src string) Result {
	t.Helper()
	res, err := New().SetCode(src)
	require.NoError(t, err)
	require.True(t, res.OK)
	return res
}

// isSubsequence reports whether every byte of sub appears in s in order.
func isSubsequence(sub, s string) bool {
	i := 0
	for j := 0; j < len(s) && i < len(sub); j++ {
		if s[j] == sub[i] {
			i++
		}
	}
	return i == len(sub)
}

var snippets = map[string]string{
	"let":        "let x = 1; x = 2;",
	"function":   "function f(a) {\n  return a + 1;\n}\nlet y = f(5);\n",
	"if-else":    "let x = 3;\nif (x > 1)\n  x = 2;\nelse\n  x = 4;\n",
	"else-if":    "let x = 3;\nif (x > 5) {\n  x = 1;\n} else if (x > 2) {\n  x = 2;\n} else {\n  x = 3;\n}\n",
	"for":        "let s = 0;\nfor (let i = 0; i < 3; i++) {\n  s += i;\n}\n",
	"for-inline": "let s = 0;\nfor (var i = 0; i < 3; i++) s += i;\n",
	"for-of":     "let arr = [1, 2];\nlet t = 0;\nfor (const v of arr) {\n  t += v;\n}\n",
	"for-in":     "let o = {a: 1};\nlet k;\nfor (k in o) {\n  console.log(k);\n}\n",
	"while":      "let n = 3;\nwhile (n > 0) {\n  n--;\n}\n",
	"do-while":   "let n = 3;\ndo {\n  n--;\n} while (n > 0);\n",
	"switch":     "let x = 2;\nlet r;\nswitch (x) {\n  case 1:\n    r = 'one';\n    break;\n  case 2:\n    r = 'two';\n    break;\n  default:\n    r = 'many';\n}\n",
	"try":        "let r = 0;\ntry {\n  r = 1;\n  throw new Error('x');\n} catch (e) {\n  r = 2;\n} finally {\n  r = 3;\n}\n",
	"label":      "let c = 0;\nouter:\nfor (let i = 0; i < 2; i++) {\n  for (let j = 0; j < 2; j++) {\n    if (j === 1) continue outer;\n    c++;\n  }\n}\n",
	"arrow":      "const add = (a, b) => {\n  return a + b;\n};\nconst twice = v => v * 2;\nlet z = add(1, twice(2));\n",
	"closure":    "let arr = [3, 1, 2];\narr.forEach(function (v) {\n  console.log(v);\n});\narr.push(4);\n",
	"comments":   "// leading\nlet a = 1; /* trailing */\n/*\n block\n*/\nlet b = a;\n",
	"interact":   "let ok = confirm('go?');\nlet name = prompt('name', 'x');\nalert('hi', name);\n",
	"empty-body": "let i = 0;\nwhile (i++ < 2) {}\n",
	"recursion":  "function fact(n) {\n  if (n <= 1) {\n    return 1;\n  }\n  return n * fact(n - 1);\n}\nlet r = fact(3);\n",
	"graph":      "let g = new Graph(GraphType.DIRECTED);\ng.addVertex(1);\ng.addEdge(1, 2);\n",
}

func TestSetCodeOutputReparses(t *testing.T) {
	for name, src := range snippets {
		t.Run(name, func(t *testing.T) {
			res := instrument(t, src)
			_, err := parser.ParseFile(nil, "", res.Code, 0)
			require.NoError(t, err, "instrumented code:\n%s", res.Code)
		})
	}
}

func TestSetCodeKeepsOriginalText(t *testing.T) {
	for name, src := range snippets {
		t.Run(name, func(t *testing.T) {
			res := instrument(t, src)
			assert.True(t, isSubsequence(src, res.Code), "original text not preserved:\n%s", res.Code)
		})
	}
}

func TestSetCodeNoCode(t *testing.T) {
	for _, src := range []string{"", "   ", "\n\t\n"} {
		res, err := New().SetCode(src)
		require.ErrorIs(t, err, ErrNoCode)
		assert.False(t, res.OK)
		assert.Equal(t, NoCodeMessage, res.Message)
		assert.Empty(t, res.Code)
	}
}

func TestSetCodeSyntaxError(t *testing.T) {
	res, err := New().SetCode("let a = 1;\nlet x = ;\n")
	require.Error(t, err)
	assert.True(t, IsSyntaxError(err))
	assert.False(t, res.OK)
	assert.True(t, strings.HasPrefix(res.Message, "line 2: "), "message %q", res.Message)

	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Line)
	assert.NotEmpty(t, se.Message)
}

func TestSetCodeReassignment(t *testing.T) {
	res := instrument(t, "let x = 1; x = 2;")

	assert.Equal(t, 2, strings.Count(res.Code, "setVar('x', x)"))
	assert.True(t, strings.HasPrefix(res.Code, ";startScope('global');try{"))
	assert.True(t, strings.HasSuffix(res.Code, "}finally{;endScope('global');}"))
	assert.Contains(t, res.Code, ";markcl(1);let x = 1;")
	assert.Contains(t, res.Code, ";forcemarkcl(1);")

	d, ok := res.Lookup("global", "x")
	require.True(t, ok)
	assert.Equal(t, DeclLet, d.Kind)
	assert.Len(t, d.Sites, 2)
	assert.Len(t, res.Declarations, 1)
}

func TestSetCodeFunctionScope(t *testing.T) {
	res := instrument(t, snippets["function"])

	start := strings.Index(res.Code, "startScope('!f')")
	end := strings.Index(res.Code, "endScope('!f')")
	setY := strings.Index(res.Code, "setVar('y', y)")
	require.True(t, start >= 0 && end >= 0 && setY >= 0, res.Code)
	assert.Less(t, start, end)
	assert.Less(t, end, setY)

	assert.Contains(t, res.Code, ";startScope('!f');;setVar('a', a);try{")
	d, ok := res.Lookup("!f", "a")
	require.True(t, ok)
	assert.Equal(t, DeclLet, d.Kind)
}

func TestSetCodeLineMarks(t *testing.T) {
	res := instrument(t, "let a = 1;\n\n// note\nlet b = 2;\n{\n}\n")

	assert.Contains(t, res.Code, ";markcl(1);")
	assert.Contains(t, res.Code, ";markcl(4);")
	for _, n := range []string{";markcl(2);", ";markcl(3);", ";markcl(5);", ";markcl(6);"} {
		assert.NotContains(t, res.Code, n)
	}
}

// markedLines returns the sorted distinct lines of markcl and forcemarkcl
// calls in code.
func markedLines(code string) []int {
	seen := map[int]bool{}
	var lines []int
	for _, part := range strings.Split(code, "markcl(")[1:] {
		n, err := strconv.Atoi(part[:strings.IndexByte(part, ')')])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		lines = append(lines, n)
	}
	slices.Sort(lines)
	return lines
}

func TestSetCodeMarksEveryCodeLine(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []int
	}{
		{"if-else on one line", "let y = 0;\nlet x = 1;\nif (x) y = 1; else y = 2;\n", []int{1, 2, 3}},
		{"unbraced branches", snippets["if-else"], []int{1, 2, 3, 5}},
		{"else-if", snippets["else-if"], []int{1, 2, 3, 5, 7, 8}},
		{"unbraced return", "function f(n) {\n  if (n < 1) return 0;\n  return f(n - 1);\n}\nlet r = f(2);\n", []int{1, 2, 3, 5}},
		{"closure", "function mk() {\n  let c = 0;\n  return function () {\n    c++;\n    return c;\n  };\n}\nlet inc = mk();\nlet v = inc();\n", []int{1, 2, 3, 4, 5, 8, 9}},
		{"break in loop", "let s = 0;\nfor (let i = 0; i < 5; i++) {\n  if (i === 2) break;\n  s += i;\n}\n", []int{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := instrument(t, tt.src)
			if diff := cmp.Diff(tt.want, markedLines(res.Code)); diff != "" {
				t.Errorf("marked lines mismatch (-want +got):\n%s\n%s", diff, res.Code)
			}
		})
	}
}

func TestSetCodeIfMarkPrecedesKeyword(t *testing.T) {
	res := instrument(t, "let x = 1;\nif (x) x = 2; else x = 3;\n")
	assert.Contains(t, res.Code, ";markcl(1);let x = 1;")
	assert.Contains(t, res.Code, "\n;markcl(2);if (x){")
}

func TestSetCodeMarksIncrease(t *testing.T) {
	res := instrument(t, snippets["try"])

	var lines []int
	for _, part := range strings.Split(res.Code, ";markcl(")[1:] {
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				break
			}
			n = n*10 + int(c-'0')
		}
		lines = append(lines, n)
	}
	require.NotEmpty(t, lines)
	for i := 1; i < len(lines); i++ {
		assert.Greater(t, lines[i], lines[i-1])
	}
}

func TestSetCodeVarWidensToFunction(t *testing.T) {
	res := instrument(t, "function g() {\n  if (true) {\n    var v = 1;\n    let w = 2;\n  }\n}\ng();\n")

	_, ok := res.Lookup("!g", "v")
	assert.True(t, ok)
	_, ok = res.Lookup("!g.local", "w")
	assert.True(t, ok)
	_, ok = res.Lookup("!g", "w")
	assert.False(t, ok)
}

func TestSetCodeLoopVariables(t *testing.T) {
	res := instrument(t, snippets["for"])

	d, ok := res.Lookup("global.local", "i")
	require.True(t, ok)
	assert.Equal(t, DeclLet, d.Kind)
	assert.Equal(t, 1, strings.Count(res.Code, "setVar('i', i)"))
	assert.Contains(t, res.Code, "{;forcemarkcl(2);;setVar('i', i);")
	assert.Contains(t, res.Code, "setVar('s', s)")

	res = instrument(t, snippets["for-inline"])
	_, ok = res.Lookup("global", "i")
	assert.True(t, ok, "var loop binding widens to global")
}

func TestSetCodeForInAssignsExisting(t *testing.T) {
	res := instrument(t, snippets["for-in"])
	assert.Contains(t, res.Code, "{;forcemarkcl(3);;setVar('k', k);")
}

func TestSetCodeSyntheticBraces(t *testing.T) {
	res := instrument(t, snippets["if-else"])
	assert.Contains(t, res.Code, "if (x > 1){")
	assert.Contains(t, res.Code, "else{")
}

func TestSetCodeCaseBodiesForceMark(t *testing.T) {
	res := instrument(t, snippets["switch"])
	assert.Contains(t, res.Code, ";forcemarkcl(5);r = 'one';")
	assert.Contains(t, res.Code, ";forcemarkcl(8);r = 'two';")
	assert.NotContains(t, res.Code, ";markcl(5);")
}

func TestSetCodeCatchParameter(t *testing.T) {
	res := instrument(t, snippets["try"])
	assert.Contains(t, res.Code, ";startScope('local');;setVar('e', e);try{")
	_, ok := res.Lookup("global.local", "e")
	assert.True(t, ok)
}

func TestSetCodeAliasSourceAndBinary(t *testing.T) {
	res := instrument(t, "let a = [1];\nlet b = a;\nlet m = 0b101;\n")

	b, ok := res.Lookup("global", "b")
	require.True(t, ok)
	assert.Equal(t, "a", b.Source)
	assert.Contains(t, res.Code, "setVar('b', b, 'a')")

	m, ok := res.Lookup("global", "m")
	require.True(t, ok)
	assert.True(t, m.IsBinaryLiteral)
}

func TestSetCodeMethodCallMutation(t *testing.T) {
	res := instrument(t, snippets["closure"])
	assert.Contains(t, res.Code, "arr.push(4);;setVar('arr', arr);")
	assert.Contains(t, res.Code, "startScope('!lambda')")
}

func TestSetCodeParamBindings(t *testing.T) {
	res := instrument(t, "function f(a, b) {\n  return a;\n}\nlet x = [1];\nf(x, 2);\n")

	want := []ParamBinding{{
		Callee: "f",
		Pairs:  []protocol.ParamPair{{Param: "!f.a", Arg: "x"}},
	}}
	got := make([]ParamBinding, len(res.Params))
	for i, p := range res.Params {
		got[i] = ParamBinding{Callee: p.Callee, Pairs: p.Pairs}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, res.Code, ";pushParams([['!f.a', 'x']]);f(x, 2);;popParams([['!f.a', 'x']]);")
}

func TestSetCodeArrowBinding(t *testing.T) {
	res := instrument(t, snippets["arrow"])
	assert.Contains(t, res.Code, "startScope('!add')")
	assert.NotContains(t, res.Code, "startScope('!twice')")
	_, ok := res.Lookup("global", "add")
	assert.False(t, ok, "function values are not tracked")
}

func TestSetCodeInteractionRename(t *testing.T) {
	res := instrument(t, snippets["interact"])
	assert.Contains(t, res.Code, "confirmWrap('go?')")
	assert.Contains(t, res.Code, "promptWrap('name', 'x')")
	assert.Contains(t, res.Code, "alertWrap('hi', name)")
}

func TestSetCodeEmptyProgram(t *testing.T) {
	res := instrument(t, "// nothing here\n")
	assert.Equal(t, ";startScope('global');try{}finally{;endScope('global');}// nothing here\n", res.Code)
}

func TestStaticScope(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"global", "global"},
		{"global.local", "global.local"},
		{"global.!f", "!f"},
		{"global.!f.local", "!f.local"},
		{"global.!f.!g.local.local", "!g.local.local"},
		{"global.local.!f", "!f"},
	}
	for _, tt := range tests {
		if got := StaticScope(tt.in); got != tt.want {
			t.Errorf("StaticScope(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResultLookupZero(t *testing.T) {
	var r Result
	_, ok := r.Lookup("global", "x")
	assert.False(t, ok)
}
