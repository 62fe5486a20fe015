package tui

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/dshills/stepviz/internal/config"
)

// ResolveMode turns the configured UI mode into tui or line. Auto picks
// tui only when both in and out are terminals.
func ResolveMode(mode string, in, out *os.File) (string, error) {
	switch mode {
	case config.ModeTUI, config.ModeLine:
		return mode, nil
	case config.ModeAuto, "":
		if IsTerminal(in) && IsTerminal(out) {
			return config.ModeTUI, nil
		}
		return config.ModeLine, nil
	default:
		return "", fmt.Errorf("unknown ui mode %q", mode)
	}
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of f, or fallback when f is not a
// terminal.
func Width(f *os.File, fallback int) int {
	if !IsTerminal(f) {
		return fallback
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
