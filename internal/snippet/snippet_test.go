package snippet

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `
ro:
  - desc: Bucla
    level: incepator
    code: "let i = 0;"
en:
  - desc: Loop
    level: beginner
    code: "for (let i = 0; i < 2; i++) {}"
  - desc: Tree
    level: advanced
    code: "let t = new BinaryTree();"
  - desc: Vars
    level: beginner
    code: "let x = 1;"
`

func TestLoadGroupsByLevel(t *testing.T) {
	lib, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 4, lib.Len())
	assert.Equal(t, []string{"en", "ro"}, lib.Langs())
	assert.Equal(t, []string{"beginner", "advanced"}, lib.Levels("en"))

	beginners := lib.AtLevel("en", "beginner")
	require.Len(t, beginners, 2)
	assert.Equal(t, "Loop", beginners[0].Desc)
	assert.Equal(t, 0, beginners[0].ID)
	assert.Equal(t, 2, beginners[1].ID)

	s, err := lib.Get(3)
	require.NoError(t, err)
	assert.Equal(t, "ro", s.Lang)
	assert.Equal(t, "Bucla", s.Desc)
}

func TestGetUnknown(t *testing.T) {
	lib := NewLibrary()
	_, err := lib.Get(0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = Builtin().Get(-1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseRejectsEmptyCode(t *testing.T) {
	_, err := Load(strings.NewReader("en:\n  - desc: nothing\n"))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Load(strings.NewReader("en: [1, 2"))
	assert.Error(t, err)
}

func TestBuiltin(t *testing.T) {
	lib := Builtin()
	require.Positive(t, lib.Len())
	assert.Equal(t, []string{"beginner", "intermediate", "advanced"}, lib.Levels(DefaultLang))
	for _, s := range lib.ForLang(DefaultLang) {
		assert.NotEmpty(t, s.Code, s.Desc)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	lib, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, lib.Encode(&buf))

	path := filepath.Join(t.TempDir(), "lib.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	again, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, lib.Len(), again.Len())
	assert.Equal(t, lib.AtLevel("en", "advanced")[0].Code, again.AtLevel("en", "advanced")[0].Code)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromSource(t *testing.T) {
	src := "//DESC: Swap two values\n//LEVEL: intermediate\nlet a = 1;\nlet b = 2;\n"
	lang, s := FromSource("snips/basics/swap.ro.js", src)
	assert.Equal(t, "ro", lang)
	assert.Equal(t, "Swap two values", s.Desc)
	assert.Equal(t, "intermediate", s.Level)
	assert.Equal(t, "let a = 1;\nlet b = 2;", s.Code)
	assert.Equal(t, "snips/basics/swap.ro.js", s.Src)

	lang, s = FromSource("plain.js", "let x;")
	assert.Equal(t, DefaultLang, lang)
	assert.Empty(t, s.Level)
}

func TestAddDefaultsLang(t *testing.T) {
	lib := NewLibrary()
	id := lib.Add("", Snippet{Code: "x"})
	s, err := lib.Get(id)
	require.NoError(t, err)
	assert.Equal(t, DefaultLang, s.Lang)
}
