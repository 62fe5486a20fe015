package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classAt(spans []Span, col int) Class {
	for _, sp := range spans {
		if col >= sp.Start && col < sp.End {
			return sp.Class
		}
	}
	return ClassPlain
}

func TestHighlight(t *testing.T) {
	h := NewHighlighter()
	defer h.Close()

	src := "let x = 10; // note\nfunction f(a) { return \"s\"; }\nf(true);"
	spans, err := h.Highlight(src)
	require.NoError(t, err)
	require.Len(t, spans, 3)

	tests := []struct {
		line, col int
		want      Class
	}{
		{0, 0, ClassKeyword},
		{0, 4, ClassPlain},
		{0, 8, ClassNumber},
		{0, 12, ClassComment},
		{1, 0, ClassKeyword},
		{1, 9, ClassFunction},
		{1, 16, ClassKeyword},
		{1, 23, ClassString},
		{2, 0, ClassFunction},
		{2, 2, ClassConstant},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classAt(spans[tt.line], tt.col), "line %d col %d", tt.line, tt.col)
	}
}

func TestHighlightMultilineToken(t *testing.T) {
	h := NewHighlighter()
	defer h.Close()

	spans, err := h.Highlight("let s = `a\nb`;")
	require.NoError(t, err)
	assert.Equal(t, ClassString, classAt(spans[0], 8))
	assert.Equal(t, ClassString, classAt(spans[1], 0))
	assert.Equal(t, ClassPlain, classAt(spans[1], 2))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "keyword", ClassKeyword.String())
	assert.Equal(t, "plain", Class(99).String())
}
