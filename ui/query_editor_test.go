package ui

import (
	"reflect"
	"testing"

	"fyne.io/fyne/v2"

	"github.com/farbodahm/sqldash/placeholder"
)

func shopSchema() *placeholder.SchemaIndex {
	return placeholder.NewSchemaIndex(
		placeholder.Table{Name: "users", Columns: []string{"id", "name"}},
		placeholder.Table{Name: "orders", Columns: []string{"id", "user_id"}},
	)
}

func newTestEditor(t *testing.T, opts QueryEditorOptions) *QueryEditor {
	t.Helper()
	e := NewQueryEditor(opts)
	e.SetSchema(shopSchema())
	t.Cleanup(e.stopBlinkTimer)
	return e
}

func typeText(e *QueryEditor, s string) {
	for _, r := range s {
		if r == '\n' {
			e.TypedKey(&fyne.KeyEvent{Name: fyne.KeyReturn})
			continue
		}
		e.TypedRune(r)
	}
}

func key(e *QueryEditor, name fyne.KeyName) {
	e.TypedKey(&fyne.KeyEvent{Name: name})
}

func TestQueryEditor_SuggestsWhileTyping(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})

	typeText(e, "SELECT * FROM ${us")
	if got := e.Suggestions().Suggestions; !reflect.DeepEqual(got, []string{"users"}) {
		t.Fatalf("expected [users], got %v", got)
	}

	typeText(e, "ers.")
	st := e.Suggestions()
	if !reflect.DeepEqual(st.Suggestions, []string{"id", "name"}) {
		t.Fatalf("expected [id name], got %v", st.Suggestions)
	}
	if st.Highlighted != -1 {
		t.Errorf("expected no highlight after typing, got %d", st.Highlighted)
	}

	key(e, fyne.KeyDown)
	key(e, fyne.KeyDown)
	key(e, fyne.KeyReturn)

	if got := e.Text(); got != "SELECT * FROM ${users.name" {
		t.Errorf("unexpected text %q", got)
	}
	if e.cursorRow != 0 || e.cursorCol != len("SELECT * FROM ${users.name") {
		t.Errorf("cursor at %d:%d, want end of line", e.cursorRow, e.cursorCol)
	}
	if e.Suggestions().Suggesting() {
		t.Error("expected popup closed after accepting")
	}
}

func TestQueryEditor_EnterWithoutHighlightInsertsNewline(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "${us")

	key(e, fyne.KeyReturn)
	if got := e.Text(); got != "${us\n" {
		t.Errorf("expected newline to be inserted, got %q", got)
	}
}

func TestQueryEditor_EscapeDismisses(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "${")
	if !e.Suggestions().Suggesting() {
		t.Fatal("expected popup open")
	}

	key(e, fyne.KeyEscape)
	if e.Suggestions().Suggesting() {
		t.Error("expected popup closed")
	}
	if got := e.Text(); got != "${" {
		t.Errorf("escape should not edit text, got %q", got)
	}
}

func TestQueryEditor_ArrowsMoveCursorWhenIdle(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "SELECT 1\nFROM t")

	key(e, fyne.KeyUp)
	if e.cursorRow != 0 {
		t.Errorf("expected cursor on first line, got row %d", e.cursorRow)
	}
	key(e, fyne.KeyDown)
	if e.cursorRow != 1 {
		t.Errorf("expected cursor on second line, got row %d", e.cursorRow)
	}
}

func TestQueryEditor_AutoClose(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{AutoClose: true})
	typeText(e, "SELECT ${")
	key(e, fyne.KeyDown)
	key(e, fyne.KeyReturn)

	if got := e.Text(); got != "SELECT ${users}" {
		t.Errorf("unexpected text %q", got)
	}
	if e.cursorCol != len("SELECT ${users}") {
		t.Errorf("expected cursor after the brace, got col %d", e.cursorCol)
	}
}

func TestQueryEditor_AcceptOnSecondLine(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "SELECT *\nFROM ${")
	key(e, fyne.KeyDown)
	key(e, fyne.KeyDown)
	key(e, fyne.KeyReturn)

	if got := e.Text(); got != "SELECT *\nFROM ${orders" {
		t.Errorf("unexpected text %q", got)
	}
	if e.cursorRow != 1 || e.cursorCol != len("FROM ${orders") {
		t.Errorf("cursor at %d:%d", e.cursorRow, e.cursorCol)
	}
}

func TestQueryEditor_UndoAfterAccept(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "${")
	key(e, fyne.KeyDown)
	key(e, fyne.KeyReturn)
	if e.Text() != "${users" {
		t.Fatalf("unexpected text %q", e.Text())
	}

	e.doUndo()
	if got := e.Text(); got != "${" {
		t.Errorf("expected undo to restore %q, got %q", "${", got)
	}
	if !e.Suggestions().Suggesting() {
		t.Error("expected suggestions to reopen after undo")
	}
}

func TestQueryEditor_PopupTap(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "${")

	e.mu.Lock()
	shown := e.popShown
	x, y, itemH := e.popX, e.popY, e.popItemH
	e.mu.Unlock()
	if !shown {
		t.Fatal("expected popup to be laid out")
	}

	e.Tapped(&fyne.PointEvent{Position: fyne.NewPos(x+2, y+itemH*1.5)})
	if got := e.Text(); got != "${orders" {
		t.Errorf("expected second item accepted, got %q", got)
	}
}

func TestQueryEditor_PopupWindowFollowsHighlight(t *testing.T) {
	e := NewQueryEditor(QueryEditorOptions{MaxVisible: 2})
	t.Cleanup(e.stopBlinkTimer)
	e.SetSchema(placeholder.NewSchemaIndex(
		placeholder.Table{Name: "a"}, placeholder.Table{Name: "b"},
		placeholder.Table{Name: "c"}, placeholder.Table{Name: "d"},
	))
	typeText(e, "${")

	for range 3 {
		key(e, fyne.KeyDown)
	}
	if e.window.First != 1 {
		t.Errorf("expected window to scroll to 1, got %d", e.window.First)
	}
	key(e, fyne.KeyDown)
	key(e, fyne.KeyDown) // wraps to 0
	if e.window.First != 0 {
		t.Errorf("expected window back at top, got %d", e.window.First)
	}
}

func TestQueryEditor_FocusLostCommits(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	var committed []string
	e.OnCommit = func(text string) { committed = append(committed, text) }

	typeText(e, "SELECT ${us")
	e.FocusLost()

	if !reflect.DeepEqual(committed, []string{"SELECT ${us"}) {
		t.Errorf("unexpected commits %v", committed)
	}
	if e.Suggestions().Suggesting() {
		t.Error("expected popup closed on focus loss")
	}
}

func TestQueryEditor_SetTextClosesPopup(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "${")
	e.SetText("SELECT 1\nFROM ${users}")

	st := e.Suggestions()
	if st.Suggesting() {
		t.Error("expected popup closed after SetText")
	}
	if st.Caret != len("SELECT 1\nFROM ${users}") {
		t.Errorf("expected caret at end, got %d", st.Caret)
	}
	if e.cursorRow != 1 || e.cursorCol != len("FROM ${users}") {
		t.Errorf("cursor at %d:%d", e.cursorRow, e.cursorCol)
	}
}

func TestQueryEditor_SetSchemaRefreshesOpenPopup(t *testing.T) {
	e := NewQueryEditor(QueryEditorOptions{})
	t.Cleanup(e.stopBlinkTimer)
	typeText(e, "${")
	if e.Suggestions().Suggesting() {
		t.Fatal("expected no suggestions without a schema")
	}

	e.SetSchema(shopSchema())
	if got := e.Suggestions().Suggestions; !reflect.DeepEqual(got, []string{"users", "orders"}) {
		t.Errorf("expected tables after schema load, got %v", got)
	}
}

func TestQueryEditor_OnChanged(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	var last string
	e.SetOnChanged(func(s string) { last = s })
	typeText(e, "ab")
	if last != "ab" {
		t.Errorf("expected 'ab', got %q", last)
	}
}

func TestQueryEditor_MultibyteEditing(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "'héllo'")
	key(e, fyne.KeyLeft)
	key(e, fyne.KeyLeft)
	key(e, fyne.KeyLeft)
	key(e, fyne.KeyLeft)
	key(e, fyne.KeyBackspace)

	if got := e.Text(); got != "'hllo'" {
		t.Errorf("expected the accented rune removed, got %q", got)
	}
}

func TestQueryEditor_PasteMultiline(t *testing.T) {
	e := newTestEditor(t, QueryEditorOptions{})
	typeText(e, "AB")
	key(e, fyne.KeyLeft)
	e.insertText("1\n2\n3")

	if got := e.Text(); got != "A1\n2\n3B" {
		t.Errorf("unexpected text %q", got)
	}
	if e.cursorRow != 2 || e.cursorCol != 1 {
		t.Errorf("cursor at %d:%d", e.cursorRow, e.cursorCol)
	}
}

func TestQueryEditor_CaretOffsetRoundTrip(t *testing.T) {
	e := NewQueryEditor(QueryEditorOptions{})
	e.lines = []string{"ab", "", "cde"}

	for off := 0; off <= 6; off++ {
		e.setCaretOffsetLocked(off)
		if got := e.caretOffsetLocked(); got != off {
			t.Errorf("offset %d: round trip gave %d (row %d col %d)", off, got, e.cursorRow, e.cursorCol)
		}
	}
	e.setCaretOffsetLocked(99)
	if e.cursorRow != 2 || e.cursorCol != 3 {
		t.Errorf("expected clamp to end, got %d:%d", e.cursorRow, e.cursorCol)
	}
}

func TestPlaceholderSpans(t *testing.T) {
	tests := []struct {
		line string
		want [][2]int
	}{
		{"SELECT 1", nil},
		{"${users}", [][2]int{{0, 8}}},
		{"a ${t.c} b ${x", [][2]int{{2, 8}, {11, 14}}},
		{"$ {no}", nil},
	}
	for _, tt := range tests {
		if got := placeholderSpans(tt.line); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("placeholderSpans(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestRuneColToByte(t *testing.T) {
	line := "aé b"
	tests := []struct{ cells, want int }{{0, 0}, {1, 1}, {2, 3}, {4, 5}, {9, 5}}
	for _, tt := range tests {
		if got := runeColToByte(line, tt.cells); got != tt.want {
			t.Errorf("runeColToByte(%d) = %d, want %d", tt.cells, got, tt.want)
		}
	}
}

func TestGridMeasurer(t *testing.T) {
	m := gridMeasurer{tabWidth: gridTabWidth}
	p0, err := m.MeasureOffset("ab\ncd", 0)
	if err != nil {
		t.Fatalf("MeasureOffset: %v", err)
	}
	p, err := m.MeasureOffset("ab\ncd", 5)
	if err != nil {
		t.Fatalf("MeasureOffset: %v", err)
	}
	if p.X <= p0.X || p.Y <= p0.Y {
		t.Errorf("expected second-line offset right of and below the origin cell, got %v vs %v", p, p0)
	}
}
