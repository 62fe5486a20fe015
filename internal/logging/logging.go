// Package logging builds the zap loggers used across stepviz.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the log encoding.
type Format string

const (
	// FormatConsole is human readable output.
	FormatConsole Format = "console"
	// FormatJSON is one JSON object per line.
	FormatJSON Format = "json"
)

// Config configures a logger.
type Config struct {
	// Level is the minimum level written: debug, info, warn or error.
	Level string `toml:"level" yaml:"level"`
	// Format is console or json.
	Format Format `toml:"format" yaml:"format"`
	// Output is a file path, or stderr/stdout.
	Output string `toml:"output" yaml:"output"`
	// Development enables stack traces on warnings and caller info.
	Development bool `toml:"development" yaml:"development"`
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "warn",
		Format: FormatConsole,
		Output: "stderr",
	}
}

// ParseLevel parses a level name. Unknown names are an error.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case FormatConsole, FormatJSON, "":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
	}
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = string(FormatConsole)
	if cfg.Format == FormatJSON {
		zc.Encoding = string(FormatJSON)
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if zc.Encoding == string(FormatConsole) {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	out := cfg.Output
	if out == "" {
		out = "stderr"
	}
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{"stderr"}

	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// Component returns a child logger for a named component.
func Component(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return Nop()
	}
	return l.Named(name).With(zap.String("component", name))
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
