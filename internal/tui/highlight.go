package tui

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Class is a token class of highlighted source.
type Class uint8

const (
	ClassPlain Class = iota
	ClassKeyword
	ClassString
	ClassNumber
	ClassComment
	ClassConstant
	ClassFunction
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassKeyword:
		return "keyword"
	case ClassString:
		return "string"
	case ClassNumber:
		return "number"
	case ClassComment:
		return "comment"
	case ClassConstant:
		return "constant"
	case ClassFunction:
		return "function"
	default:
		return "plain"
	}
}

// Span is a highlighted byte range [Start, End) of one source line.
type Span struct {
	Start int
	End   int
	Class Class
}

// Highlighter classifies JavaScript tokens with tree-sitter. It is not safe
// for concurrent use.
type Highlighter struct {
	parser *sitter.Parser
}

// NewHighlighter creates a JavaScript highlighter.
func NewHighlighter() *Highlighter {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &Highlighter{parser: p}
}

// Close releases the parser.
func (h *Highlighter) Close() {
	h.parser.Close()
}

// Highlight returns the spans of every line of src, in order. Lines without
// tokens of interest have no spans.
func (h *Highlighter) Highlight(src string) ([][]Span, error) {
	tree, err := h.parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		return nil, fmt.Errorf("highlight: %w", err)
	}
	defer tree.Close()

	lines := strings.Split(src, "\n")
	spans := make([][]Span, len(lines))
	add := func(n *sitter.Node, class Class) {
		start, end := n.StartPoint(), n.EndPoint()
		for row := int(start.Row); row <= int(end.Row) && row < len(lines); row++ {
			from, to := 0, len(lines[row])
			if row == int(start.Row) {
				from = int(start.Column)
			}
			if row == int(end.Row) {
				to = int(end.Column)
			}
			if to > from {
				spans[row] = append(spans[row], Span{Start: from, End: to, Class: class})
			}
		}
	}

	var walk func(n *sitter.Node, parent *sitter.Node)
	walk = func(n *sitter.Node, parent *sitter.Node) {
		if class, ok := classify(n, parent); ok {
			add(n, class)
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), n)
		}
	}
	walk(tree.RootNode(), nil)
	return spans, nil
}

// classify reports the class of a node highlighted as a whole.
func classify(n, parent *sitter.Node) (Class, bool) {
	switch n.Type() {
	case "string", "template_string", "regex":
		return ClassString, true
	case "number":
		return ClassNumber, true
	case "comment":
		return ClassComment, true
	case "true", "false", "null", "undefined", "this":
		return ClassConstant, true
	case "identifier":
		if parent != nil && isCallee(n, parent) {
			return ClassFunction, true
		}
		return ClassPlain, false
	}
	if !n.IsNamed() && isWord(n.Type()) {
		return ClassKeyword, true
	}
	return ClassPlain, false
}

func isCallee(n, parent *sitter.Node) bool {
	var field string
	switch parent.Type() {
	case "call_expression", "new_expression":
		field = "function"
		if parent.Type() == "new_expression" {
			field = "constructor"
		}
	case "function_declaration", "function", "function_expression":
		field = "name"
	default:
		return false
	}
	target := parent.ChildByFieldName(field)
	return target != nil && target.StartByte() == n.StartByte() && target.EndByte() == n.EndByte()
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
