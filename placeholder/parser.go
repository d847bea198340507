package placeholder

import (
	"strings"
	"unicode/utf8"
)

const (
	openMarker  = "${"
	closeMarker = "}"
)

// Match describes the placeholder the caret is in, if any.
type Match struct {
	// Open is false when the caret is not inside an unterminated "${".
	Open bool
	// Start is the byte offset of the '$' of the marker.
	Start int
	// Content is the raw text between the marker and the caret.
	Content string
	// TablePart and ColumnPart are Content split on its first dot, with
	// surrounding whitespace trimmed. ColumnPart is only meaningful when
	// HasColumn is set.
	TablePart  string
	ColumnPart string
	HasColumn  bool
}

// ClampCaret bounds caret to [0, len(text)] and moves it back onto a rune
// boundary.
func ClampCaret(text string, caret int) int {
	if caret < 0 {
		return 0
	}
	if caret > len(text) {
		return len(text)
	}
	for caret > 0 && caret < len(text) && !utf8.RuneStart(text[caret]) {
		caret--
	}
	return caret
}

// Parse reports whether the caret sits inside an open placeholder and
// extracts what has been typed after the marker. When several markers
// precede the caret the nearest one wins, so "${a${b" yields "b".
func Parse(text string, caret int) Match {
	caret = ClampCaret(text, caret)
	before := text[:caret]

	start := strings.LastIndex(before, openMarker)
	if start < 0 {
		return Match{}
	}
	content := before[start+len(openMarker):]
	if strings.Contains(content, closeMarker) {
		return Match{}
	}

	m := Match{Open: true, Start: start, Content: content}
	table, column, found := strings.Cut(content, ".")
	m.TablePart = strings.TrimSpace(table)
	if found {
		m.HasColumn = true
		m.ColumnPart = strings.TrimSpace(column)
	}
	return m
}

// End returns the offset right after the content, i.e. the caret the match
// was parsed at.
func (m Match) End() int {
	return m.Start + len(openMarker) + len(m.Content)
}
