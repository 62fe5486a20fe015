// Package snippet holds the curated snippet library.
//
// A library file maps a language to a list of snippets:
//
//	en:
//	  - desc: Counting with a for loop
//	    level: beginner
//	    code: |-
//	      let sum = 0;
package snippet

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLang is the language used when none is given.
const DefaultLang = "en"

// Header markers recognized at the top of snippet source files.
const (
	DescHeader  = "//DESC:"
	LevelHeader = "//LEVEL:"
)

var (
	// ErrNotFound is returned for an unknown snippet id.
	ErrNotFound = errors.New("snippet not found")

	// ErrEmpty is returned for a snippet without code.
	ErrEmpty = errors.New("snippet has no code")
)

//go:embed builtin.yaml
var builtin []byte

// Snippet is one example program.
type Snippet struct {
	ID    int    `yaml:"-"`
	Lang  string `yaml:"-"`
	Code  string `yaml:"code"`
	Desc  string `yaml:"desc"`
	Level string `yaml:"level"`
	Src   string `yaml:"src,omitempty"`
}

// Library groups snippets by language and level. Ids are assigned in load
// order across languages, starting at 0.
type Library struct {
	all    []Snippet
	byLang map[string]map[string][]int
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{byLang: make(map[string]map[string][]int)}
}

// Builtin returns the library shipped with stepviz.
func Builtin() *Library {
	lib := NewLibrary()
	if err := lib.Parse(builtin); err != nil {
		panic(fmt.Sprintf("builtin snippets: %v", err))
	}
	return lib
}

// LoadFile reads a YAML library file.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snippets: %w", err)
	}
	lib := NewLibrary()
	if err := lib.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// Load reads a YAML library from r.
func Load(r io.Reader) (*Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lib := NewLibrary()
	if err := lib.Parse(data); err != nil {
		return nil, err
	}
	return lib, nil
}

// Parse adds the snippets of a YAML document. Languages are added in
// sorted order so ids are stable.
func (l *Library) Parse(data []byte) error {
	var doc map[string][]Snippet
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse snippets: %w", err)
	}
	langs := make([]string, 0, len(doc))
	for lang := range doc {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	for _, lang := range langs {
		for i, s := range doc[lang] {
			if strings.TrimSpace(s.Code) == "" {
				return fmt.Errorf("%s[%d]: %w", lang, i, ErrEmpty)
			}
			l.Add(lang, s)
		}
	}
	return nil
}

// Add appends s under lang and returns its id.
func (l *Library) Add(lang string, s Snippet) int {
	if lang == "" {
		lang = DefaultLang
	}
	s.ID = len(l.all)
	s.Lang = lang
	l.all = append(l.all, s)

	levels, ok := l.byLang[lang]
	if !ok {
		levels = make(map[string][]int)
		l.byLang[lang] = levels
	}
	levels[s.Level] = append(levels[s.Level], s.ID)
	return s.ID
}

// Len returns the number of snippets.
func (l *Library) Len() int {
	return len(l.all)
}

// Get returns a snippet by id.
func (l *Library) Get(id int) (Snippet, error) {
	if id < 0 || id >= len(l.all) {
		return Snippet{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return l.all[id], nil
}

// Langs returns the languages in sorted order.
func (l *Library) Langs() []string {
	out := make([]string, 0, len(l.byLang))
	for lang := range l.byLang {
		out = append(out, lang)
	}
	slices.Sort(out)
	return out
}

// Levels returns the levels of lang in first-seen order.
func (l *Library) Levels(lang string) []string {
	levels := l.byLang[lang]
	out := make([]string, 0, len(levels))
	for level := range levels {
		out = append(out, level)
	}
	slices.SortFunc(out, func(a, b string) int {
		return levels[a][0] - levels[b][0]
	})
	return out
}

// AtLevel returns the snippets of lang at level, in id order.
func (l *Library) AtLevel(lang, level string) []Snippet {
	ids := l.byLang[lang][level]
	out := make([]Snippet, len(ids))
	for i, id := range ids {
		out[i] = l.all[id]
	}
	return out
}

// ForLang returns every snippet of lang in id order.
func (l *Library) ForLang(lang string) []Snippet {
	var out []Snippet
	for _, s := range l.all {
		if s.Lang == lang {
			out = append(out, s)
		}
	}
	return out
}

// Encode writes the library as YAML.
func (l *Library) Encode(w io.Writer) error {
	doc := make(map[string][]Snippet)
	for _, s := range l.all {
		doc[s.Lang] = append(doc[s.Lang], s)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// FromSource builds a snippet from a source file. Leading //DESC: and
// //LEVEL: lines set the description and level and are removed from the
// code. The language comes from a name such as "loop.ro.js".
func FromSource(name, source string) (lang string, s Snippet) {
	var code []string
	for _, line := range strings.Split(source, "\n") {
		switch {
		case s.Desc == "" && strings.Contains(line, DescHeader):
			s.Desc = strings.TrimSpace(strings.Replace(line, DescHeader, "", 1))
		case s.Level == "" && strings.Contains(line, LevelHeader):
			s.Level = strings.TrimSpace(strings.Replace(line, LevelHeader, "", 1))
		default:
			code = append(code, line)
		}
	}
	s.Code = strings.TrimRight(strings.Join(code, "\n"), "\n")
	s.Src = filepath.ToSlash(name)

	lang = DefaultLang
	base := strings.TrimSuffix(filepath.Base(name), ".js")
	if ext := filepath.Ext(base); len(ext) > 1 {
		lang = ext[1:]
	}
	return lang, s
}
