package instrument

import (
	"regexp"
	"strings"
)

// class is the lexical class of a source byte.
type class uint8

const (
	classCode class = iota
	classString
	classComment
)

// classify assigns a lexical class to every byte of src. It tracks string,
// template and comment state; regular expression literals are treated as
// code.
func classify(src string) []class {
	out := make([]class, len(src))
	const (
		stCode = iota
		stLine
		stBlock
		stQuote
		stTemplate
	)
	state := stCode
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch state {
		case stCode:
			switch {
			case c == '/' && i+1 < len(src) && src[i+1] == '/':
				state = stLine
				out[i] = classComment
			case c == '/' && i+1 < len(src) && src[i+1] == '*':
				state = stBlock
				out[i], out[i+1] = classComment, classComment
				i++
			case c == '\'' || c == '"':
				state, quote = stQuote, c
				out[i] = classString
			case c == '`':
				state = stTemplate
				out[i] = classString
			}
		case stLine:
			if c == '\n' {
				state = stCode
				continue
			}
			out[i] = classComment
		case stBlock:
			out[i] = classComment
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				out[i+1] = classComment
				i++
				state = stCode
			}
		case stQuote:
			out[i] = classString
			switch c {
			case '\\':
				if i+1 < len(src) {
					out[i+1] = classString
					i++
				}
			case quote, '\n':
				state = stCode
			}
		case stTemplate:
			out[i] = classString
			switch c {
			case '\\':
				if i+1 < len(src) {
					out[i+1] = classString
					i++
				}
			case '`':
				state = stCode
			}
		}
	}
	return out
}

var interactionCall = regexp.MustCompile(`\b(alert|confirm|prompt)\s*\(`)

// wrapInteractions renames alert, confirm and prompt call sites to their
// wrapped variants. Member calls such as window.alert( are left alone, as
// are matches inside strings and comments.
func wrapInteractions(src string) string {
	classes := classify(src)
	matches := interactionCall.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, nameEnd := m[2], m[3]
		if classes[start] != classCode || isMemberAccess(src, start) {
			continue
		}
		b.WriteString(src[last:nameEnd])
		b.WriteString("Wrap")
		last = nameEnd
	}
	b.WriteString(src[last:])
	return b.String()
}

func isMemberAccess(src string, at int) bool {
	if at > 0 && isIdentByte(src[at-1]) {
		return true
	}
	for i := at - 1; i >= 0; i-- {
		switch src[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case '.':
			return true
		default:
			return false
		}
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v'
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	starts := lineIndex{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// line returns the 1-based line holding offset.
func (l lineIndex) line(offset int) int {
	lo, hi := 0, len(l)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if l[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// scanner offers comment-aware movement over the source.
type scanner struct {
	src     string
	classes []class
}

func (s *scanner) skippable(i int) bool {
	return s.classes[i] == classComment || isSpace(s.src[i])
}

// skipForward returns the first offset at or after i that is neither
// whitespace nor comment.
func (s *scanner) skipForward(i int) int {
	for i < len(s.src) && s.skippable(i) {
		i++
	}
	return i
}

// skipBackward returns the offset just past the last byte before i that is
// neither whitespace nor comment.
func (s *scanner) skipBackward(i int) int {
	for i > 0 && s.skippable(i-1) {
		i--
	}
	return i
}

// statementEnd extends a semicolon-terminated statement end over closing
// parentheses the parser leaves out and a trailing semicolon.
func (s *scanner) statementEnd(end int) int {
	for {
		j := s.skipForward(end)
		if j < len(s.src) && s.src[j] == ')' && s.classes[j] == classCode {
			end = j + 1
			continue
		}
		if j < len(s.src) && s.src[j] == ';' {
			return j + 1
		}
		return end
	}
}

// statementStart moves an expression statement start back over opening
// parentheses the parser leaves out.
func (s *scanner) statementStart(start int) int {
	for {
		j := s.skipBackward(start)
		if j > 0 && s.src[j-1] == '(' && s.classes[j-1] == classCode {
			start = j - 1
			continue
		}
		return start
	}
}

// keywordStart returns the offset of keyword when it is the last code
// before the opening parenthesis at paren, or paren itself otherwise.
func (s *scanner) keywordStart(paren int, keyword string) int {
	j := s.skipBackward(paren)
	if strings.HasSuffix(s.src[:j], keyword) && s.classes[j-1] == classCode {
		return j - len(keyword)
	}
	if k := strings.LastIndex(s.src[:paren], keyword); k >= 0 {
		return k
	}
	return paren
}

// headerEnd returns the offset just past the closing parenthesis or keyword
// that precedes a body starting at bodyStart.
func (s *scanner) headerEnd(bodyStart int, keyword string) int {
	j := s.skipBackward(bodyStart)
	if keyword == "" {
		if j > 0 && s.src[j-1] == ')' {
			return j
		}
		if k := strings.LastIndexByte(s.src[:bodyStart], ')'); k >= 0 {
			return k + 1
		}
		return bodyStart
	}
	if strings.HasSuffix(s.src[:j], keyword) {
		return j
	}
	if k := strings.LastIndex(s.src[:bodyStart], keyword); k >= 0 {
		return k + len(keyword)
	}
	return bodyStart
}

// doWhileEnd returns the end of a do-while statement whose body ends at
// bodyEnd: past "while (...)" and an optional semicolon.
func (s *scanner) doWhileEnd(bodyEnd int) int {
	i := s.skipForward(bodyEnd)
	open := strings.IndexByte(s.src[i:], '(')
	if open < 0 {
		return bodyEnd
	}
	i += open
	depth := 0
	for ; i < len(s.src); i++ {
		if s.classes[i] != classCode {
			continue
		}
		switch s.src[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s.statementEnd(i + 1)
			}
		}
	}
	return len(s.src)
}

const punctuation = "{}()[];,"

// lineEntry returns the offset where a line marker may go for the line
// spanning [start, end), or -1 when the line holds no code: blank lines,
// comment-only lines and lines made only of braces, brackets, parentheses
// and separators.
func (s *scanner) lineEntry(start, end int) int {
	first := -1
	code := false
	for i := start; i < end; i++ {
		if s.classes[i] == classComment || isSpace(s.src[i]) {
			continue
		}
		if first < 0 {
			first = i
		}
		if s.classes[i] == classString || !strings.ContainsRune(punctuation, rune(s.src[i])) {
			code = true
			break
		}
	}
	if !code {
		return -1
	}
	if s.src[first] == '{' && s.classes[first] == classCode {
		return first + 1
	}
	return first
}
