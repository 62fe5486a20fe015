package loader

import (
	"testing"
)

func envLoader(vars ...string) *EnvLoader {
	l := NewEnvLoader(EnvPrefix)
	l.environ = func() []string { return vars }
	return l
}

func TestEnvLoader_Load(t *testing.T) {
	loader := envLoader(
		"STEPVIZ_LOG_LEVEL=debug",
		"STEPVIZ_SESSION_STEP_DELAY=250ms",
		"STEPVIZ_TRACE_SQLITE=true",
		"STEPVIZ_AUTOPLAY=yes",
		"HOME=/root",
	)
	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"log.level", "debug"},
		{"session.step_delay", "250ms"},
		{"trace.sqlite", true},
		{"session.auto_play", true},
	}
	for _, tt := range tests {
		if val, ok := GetPath(config, tt.path); !ok || val != tt.want {
			t.Errorf("%s = %v (%T), want %v", tt.path, val, val, tt.want)
		}
	}
	if _, ok := config["home"]; ok {
		t.Error("unprefixed variable was loaded")
	}
}

func TestEnvLoader_AddMapping(t *testing.T) {
	loader := envLoader("STEPVIZ_THEME=light")
	loader.AddMapping("STEPVIZ_THEME", "ui.theme")

	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if val, ok := GetPath(config, "ui.theme"); !ok || val != "light" {
		t.Errorf("ui.theme = %v, want light", val)
	}
}

func TestEnvLoader_envToPath(t *testing.T) {
	loader := NewEnvLoader(EnvPrefix)

	tests := []struct {
		env  string
		want string
	}{
		{"STEPVIZ_LOG_LEVEL", "log.level"},
		{"STEPVIZ_SESSION_STEP_DELAY", "session.step_delay"},
		{"STEPVIZ_UI_MODE", "ui.mode"},
		{"STEPVIZ_LONE", ""},
	}
	for _, tt := range tests {
		if got := loader.envToPath(tt.env); got != tt.want {
			t.Errorf("envToPath(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestEnvLoader_parseValue(t *testing.T) {
	loader := NewEnvLoader(EnvPrefix)

	tests := []struct {
		input string
		want  any
	}{
		{"true", true},
		{"OFF", false},
		{"42", int64(42)},
		{"1.5", 1.5},
		{"500ms", "500ms"},
		{"hello", "hello"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := loader.parseValue(tt.input); got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
		}
	}
}
