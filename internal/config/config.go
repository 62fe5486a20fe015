// Package config loads stepviz settings.
//
// Settings come from four layers, later layers winning: built-in defaults,
// a TOML or YAML file, STEPVIZ_* environment variables and command line
// overrides. Layers are merged as nested maps and decoded once into Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/stepviz/internal/config/loader"
	"github.com/dshills/stepviz/internal/logging"
)

// MaxStepDelay bounds the auto-play delay.
const MaxStepDelay = time.Minute

// Config is the complete stepviz configuration.
type Config struct {
	Log      logging.Config `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
	Trace    TraceConfig    `yaml:"trace"`
	UI       UIConfig       `yaml:"ui"`
	Snippets SnippetsConfig `yaml:"snippets"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: logging.DefaultConfig(),
		Session: SessionConfig{
			StepDelay: Duration(500 * time.Millisecond),
		},
		UI: UIConfig{
			Mode:      ModeAuto,
			Theme:     "dark",
			Highlight: true,
		},
	}
}

// options collects Load options.
type options struct {
	path      string
	required  bool
	fs        loader.FileSystem
	env       loader.Loader
	overrides map[string]any
}

// Option configures Load.
type Option func(*options)

// WithFile reads the given file. A missing file is an error.
func WithFile(path string) Option {
	return func(o *options) {
		o.path = path
		o.required = true
	}
}

// WithFS reads files through fsys.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithEnv replaces the environment source.
func WithEnv(l loader.Loader) Option {
	return func(o *options) {
		o.env = l
	}
}

// WithOverride sets a dotted path, e.g. "ui.mode", above every other
// layer.
func WithOverride(path string, value any) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[string]any)
		}
		loader.SetPath(o.overrides, path, value)
	}
}

// DefaultPath returns the user config file location.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "stepviz", "config.toml")
}

// Load builds a Config from the layers and validates it.
func Load(opts ...Option) (*Config, error) {
	o := options{
		path: DefaultPath(),
		fs:   loader.DefaultFS(),
		env:  loader.NewEnvLoader(loader.EnvPrefix),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()
	merged := map[string]any{}

	if o.path != "" {
		l, err := loader.ForPath(o.fs, o.path)
		if err != nil {
			return nil, err
		}
		file, err := l.Load()
		if err != nil {
			return nil, err
		}
		if file == nil && o.required {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, o.path)
		}
		if file != nil {
			cfg.Source = o.path
		}
		merged = loader.DeepMerge(merged, file)
	}

	if o.env != nil {
		env, err := o.env.Load()
		if err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
		merged = loader.DeepMerge(merged, env)
	}
	merged = loader.DeepMerge(merged, o.overrides)

	if err := cfg.apply(merged); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply decodes the merged layers over c, leaving unset keys alone.
func (c *Config) apply(layers map[string]any) error {
	if len(layers) == 0 {
		return nil
	}
	data, err := yaml.Marshal(layers)
	if err != nil {
		return fmt.Errorf("encode config layers: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		src := c.Source
		if src == "" {
			src = "<layers>"
		}
		return &ParseError{Path: src, Message: err.Error(), Err: err}
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, &ValidationError{Path: "log", Message: err.Error(), Value: c.Log.Level, Code: ErrCodeInvalidEnum})
	}
	if d := c.Session.StepDelay.Std(); d < 0 || d > MaxStepDelay {
		errs = append(errs, &ValidationError{
			Path:    "session.step_delay",
			Message: fmt.Sprintf("must be between 0 and %s", MaxStepDelay),
			Value:   d,
			Code:    ErrCodeOutOfRange,
		})
	}
	if !slices.Contains([]string{ModeAuto, ModeTUI, ModeLine}, c.UI.Mode) {
		errs = append(errs, &ValidationError{Path: "ui.mode", Message: "must be auto, tui or line", Value: c.UI.Mode, Code: ErrCodeInvalidEnum})
	}
	if !slices.Contains(themes, c.UI.Theme) {
		errs = append(errs, &ValidationError{Path: "ui.theme", Message: "unknown theme", Value: c.UI.Theme, Code: ErrCodeInvalidEnum})
	}
	if c.Trace.SQLite && c.Trace.Dir == "" {
		errs = append(errs, &ValidationError{Path: "trace.sqlite", Message: "requires trace.dir", Value: true, Code: ErrCodeTypeMismatch})
	}
	return errors.Join(errs...)
}
