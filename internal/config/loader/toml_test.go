package loader

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestTOMLLoader_Load(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/config.toml", `
[session]
auto_play = true
step_delay = "250ms"

[ui]
mode = "line"
`)

	loader := NewTOMLLoaderWithFS(memfs, "/config.toml")
	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	session, ok := config["session"].(map[string]any)
	if !ok {
		t.Fatal("expected session to be a map")
	}
	if session["auto_play"] != true {
		t.Errorf("auto_play = %v, want true", session["auto_play"])
	}
	if session["step_delay"] != "250ms" {
		t.Errorf("step_delay = %v, want 250ms", session["step_delay"])
	}
	if v, ok := GetPath(config, "ui.mode"); !ok || v != "line" {
		t.Errorf("ui.mode = %v, want line", v)
	}
}

func TestTOMLLoader_LoadNonExistent(t *testing.T) {
	loader := NewTOMLLoaderWithFS(NewMemFS(), "/nonexistent.toml")

	config, err := loader.Load()
	if err != nil {
		t.Fatalf("expected no error for non-existent file, got: %v", err)
	}
	if config != nil {
		t.Error("expected nil config for non-existent file")
	}
}

func TestTOMLLoader_LoadInvalid(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/invalid.toml", "[ui\nmode = 4\n")

	_, err := NewTOMLLoaderWithFS(memfs, "/invalid.toml").Load()
	if err == nil {
		t.Fatal("expected parse error")
	}

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if parseErr.Path != "/invalid.toml" {
		t.Errorf("Path = %q, want '/invalid.toml'", parseErr.Path)
	}
	if parseErr.Line != 1 {
		t.Errorf("Line = %d, want 1", parseErr.Line)
	}
	if !strings.Contains(err.Error(), "/invalid.toml at line 1") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestTOMLLoader_LoadFromReader(t *testing.T) {
	loader := &TOMLLoader{}

	config, err := loader.LoadFromReader(strings.NewReader("theme = \"light\"\nwidth = 12\n"))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if config["theme"] != "light" {
		t.Errorf("theme = %v, want 'light'", config["theme"])
	}
	if config["width"] != int64(12) {
		t.Errorf("width = %v, want 12", config["width"])
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"a/config.toml", "*loader.TOMLLoader", false},
		{"a/config.YAML", "*loader.YAMLLoader", false},
		{"config.yml", "*loader.YAMLLoader", false},
		{"config.json", "", true},
	}
	for _, tt := range tests {
		l, err := ForPath(NewMemFS(), tt.path)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("ForPath(%q) error = %v, want ErrUnsupportedFormat", tt.path, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ForPath(%q) failed: %v", tt.path, err)
		}
		if got := typeName(l); got != tt.want {
			t.Errorf("ForPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TOMLLoader:
		return "*loader.TOMLLoader"
	case *YAMLLoader:
		return "*loader.YAMLLoader"
	default:
		return "unknown"
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"log": map[string]any{"level": "warn", "format": "console"},
		"ui":  map[string]any{"mode": "auto"},
	}
	src := map[string]any{
		"log": map[string]any{"level": "debug"},
		"ui":  "flat",
	}

	got := DeepMerge(dst, src)
	if v, _ := GetPath(got, "log.level"); v != "debug" {
		t.Errorf("log.level = %v, want debug", v)
	}
	if v, _ := GetPath(got, "log.format"); v != "console" {
		t.Errorf("log.format = %v, want console", v)
	}
	if got["ui"] != "flat" {
		t.Errorf("ui = %v, want flat", got["ui"])
	}
	if DeepMerge(nil, nil) == nil {
		t.Error("DeepMerge(nil, nil) returned nil")
	}
}

func TestSetPath(t *testing.T) {
	m := map[string]any{"trace": "scalar"}
	SetPath(m, "trace.dir", "/tmp/t")
	SetPath(m, "a.b.c", 1)

	if v, ok := GetPath(m, "trace.dir"); !ok || v != "/tmp/t" {
		t.Errorf("trace.dir = %v, want /tmp/t", v)
	}
	if v, ok := GetPath(m, "a.b.c"); !ok || v != 1 {
		t.Errorf("a.b.c = %v, want 1", v)
	}
	if _, ok := GetPath(m, "a.x"); ok {
		t.Error("a.x should not exist")
	}
}
