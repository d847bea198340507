package placeholder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		caret int
		want  Match
	}{
		{
			name:  "no marker",
			text:  "SELECT * FROM users",
			caret: 19,
			want:  Match{},
		},
		{
			name:  "empty content",
			text:  "SELECT ${",
			caret: 9,
			want:  Match{Open: true, Start: 7},
		},
		{
			name:  "table part",
			text:  "SELECT * FROM ${us",
			caret: 18,
			want:  Match{Open: true, Start: 14, Content: "us", TablePart: "us"},
		},
		{
			name:  "nearest marker wins",
			text:  "${a${b",
			caret: 6,
			want:  Match{Open: true, Start: 3, Content: "b", TablePart: "b"},
		},
		{
			name:  "dot with empty column",
			text:  "SELECT * FROM ${users.",
			caret: 22,
			want:  Match{Open: true, Start: 14, Content: "users.", TablePart: "users", HasColumn: true},
		},
		{
			name:  "column part",
			text:  "x ${users.na",
			caret: 12,
			want:  Match{Open: true, Start: 2, Content: "users.na", TablePart: "users", ColumnPart: "na", HasColumn: true},
		},
		{
			name:  "split on first dot only",
			text:  "${a.b.c",
			caret: 7,
			want:  Match{Open: true, Content: "a.b.c", TablePart: "a", ColumnPart: "b.c", HasColumn: true},
		},
		{
			name:  "closed placeholder",
			text:  "${users} ",
			caret: 9,
			want:  Match{},
		},
		{
			name:  "caret inside closed placeholder",
			text:  "${users}",
			caret: 4,
			want:  Match{Open: true, Content: "us", TablePart: "us"},
		},
		{
			name:  "most recent marker wins",
			text:  "${users} and ${or",
			caret: 17,
			want:  Match{Open: true, Start: 13, Content: "or", TablePart: "or"},
		},
		{
			name:  "text after caret ignored",
			text:  "${us WHERE x}",
			caret: 4,
			want:  Match{Open: true, Content: "us", TablePart: "us"},
		},
		{
			name:  "whitespace trimmed for matching",
			text:  "${ users . id",
			caret: 13,
			want:  Match{Open: true, Content: " users . id", TablePart: "users", ColumnPart: "id", HasColumn: true},
		},
		{
			name:  "lone dollar",
			text:  "$us",
			caret: 3,
			want:  Match{},
		},
		{
			name:  "caret past end is clamped",
			text:  "${ord",
			caret: 99,
			want:  Match{Open: true, Content: "ord", TablePart: "ord"},
		},
		{
			name:  "negative caret is clamped",
			text:  "${ord",
			caret: -3,
			want:  Match{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.text, tt.caret))
		})
	}
}

func TestParseNoOpenMarkerBeforeCaret(t *testing.T) {
	texts := []string{"", "SELECT 1", "a} b}", "}}{{", "$ {x", "{$x", "$}{"}
	for _, text := range texts {
		for c := 0; c <= len(text); c++ {
			assert.False(t, Parse(text, c).Open, "text %q caret %d", text, c)
		}
	}
}

func TestClampCaretRuneBoundary(t *testing.T) {
	text := "${é" // é is two bytes
	assert.Equal(t, 2, ClampCaret(text, 2))
	assert.Equal(t, 2, ClampCaret(text, 3))
	assert.Equal(t, 4, ClampCaret(text, 4))

	m := Parse(text, 3)
	assert.True(t, m.Open)
	assert.Equal(t, "", m.Content)
}

func TestMatchEnd(t *testing.T) {
	m := Parse("ab ${us", 7)
	assert.Equal(t, 7, m.End())
}
