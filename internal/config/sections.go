package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// UI modes.
const (
	ModeAuto = "auto"
	ModeTUI  = "tui"
	ModeLine = "line"
)

// Themes for the terminal stepper.
var themes = []string{"dark", "light", "mono"}

// SessionConfig configures stepping.
type SessionConfig struct {
	// AutoPlay starts replays in auto-play mode.
	AutoPlay bool `yaml:"auto_play"`
	// StepDelay is the auto-play delay between lines.
	StepDelay Duration `yaml:"step_delay"`
}

// TraceConfig configures the operation recorder.
type TraceConfig struct {
	// Dir receives JSON-lines traces and the SQLite store. Empty disables
	// recording.
	Dir string `yaml:"dir"`
	// SQLite also persists runs into Dir/trace.db.
	SQLite bool `yaml:"sqlite"`
}

// UIConfig configures the front end.
type UIConfig struct {
	// Mode is auto, tui or line.
	Mode string `yaml:"mode"`
	// Theme is the color theme name.
	Theme string `yaml:"theme"`
	// Highlight enables syntax highlighting of the source pane.
	Highlight bool `yaml:"highlight"`
}

// SnippetsConfig locates the snippet library.
type SnippetsConfig struct {
	// Path is a YAML snippet file. Empty uses the built-in library.
	Path string `yaml:"path"`
}

// Duration is a time.Duration read from "250ms" style strings or from
// integer milliseconds.
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in Go syntax.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string or milliseconds", node.Line)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}
