package ui

import (
	"image/color"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/go-logr/logr"

	"github.com/farbodahm/sqldash/placeholder"
)

const (
	defaultMaxVisible = 8
	gridTabWidth      = 4
	popupMinWidth     = 160
)

// QueryEditorOptions configures a QueryEditor.
type QueryEditorOptions struct {
	MaxVisible int  // popup rows shown at once
	AutoClose  bool // accepted suggestions get a closing brace
	Logger     logr.Logger
}

// QueryEditor is a TextGrid-based SQL editor with syntax highlighting and
// ${table} / ${table.column} placeholder suggestions.
type QueryEditor struct {
	widget.BaseWidget
	grid      *widget.TextGrid
	lines     []string
	cursorRow int
	cursorCol int // byte offset into lines[cursorRow]
	focused   bool
	blinkOn   bool
	onChanged func(string)
	OnSubmit  func()       // called on Cmd+Enter / Ctrl+Enter
	OnCommit  func(string) // called with the text when the editor loses focus

	// Selection state: anchor is where selection started, cursor is the other end.
	hasSelection bool
	anchorRow    int
	anchorCol    int

	shifting bool
	dragging bool

	undoStack []undoEntry
	redoStack []undoEntry

	mu          sync.Mutex
	placeholder string
	lexer       chroma.Lexer
	stopBlink   chan struct{}

	// Suggestion state machine. phMu is never held together with mu.
	phMu   sync.Mutex
	ph     *placeholder.Editor
	window *placeholder.Window

	// Popup rendering (canvas primitives, created in CreateRenderer).
	popBg      *canvas.Rectangle
	popSelBg   *canvas.Rectangle
	popTexts   []*canvas.Text
	popItemH   float32
	popX, popY float32
	popW, popH float32
	popShown   bool
}

const maxUndoStack = 500

type undoEntry struct {
	lines     []string
	cursorRow int
	cursorCol int
}

var (
	_ fyne.Focusable    = (*QueryEditor)(nil)
	_ fyne.Tappable     = (*QueryEditor)(nil)
	_ fyne.Draggable    = (*QueryEditor)(nil)
	_ fyne.Shortcutable = (*QueryEditor)(nil)
	_ fyne.Tabbable     = (*QueryEditor)(nil)
	_ desktop.Keyable   = (*QueryEditor)(nil)
)

func NewQueryEditor(opts QueryEditorOptions) *QueryEditor {
	if opts.MaxVisible <= 0 {
		opts.MaxVisible = defaultMaxVisible
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	grid := widget.NewTextGrid()
	grid.TabWidth = gridTabWidth
	grid.Scroll = fyne.ScrollNone

	e := &QueryEditor{
		grid:   grid,
		lines:  []string{""},
		lexer:  lexers.Get("sql"),
		window: &placeholder.Window{Visible: opts.MaxVisible},
	}
	e.ph = placeholder.NewEditor(
		placeholder.WithMeasurer(gridMeasurer{tabWidth: gridTabWidth}),
		placeholder.WithScroller(e.window),
		placeholder.WithAutoClose(opts.AutoClose),
		placeholder.WithLogger(opts.Logger.WithName("placeholder")),
		placeholder.WithCommitFunc(func(text string) {
			if fn := e.OnCommit; fn != nil {
				fn(text)
			}
		}),
	)
	e.ExtendBaseWidget(e)
	return e
}

// Text returns the full editor content.
func (e *QueryEditor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.lines, "\n")
}

// SetText replaces the editor content and closes the suggestion popup.
func (e *QueryEditor) SetText(text string) {
	e.mu.Lock()
	if text == "" {
		e.lines = []string{""}
	} else {
		e.lines = strings.Split(text, "\n")
	}
	e.cursorRow = len(e.lines) - 1
	e.cursorCol = len(e.lines[e.cursorRow])
	e.hasSelection = false
	e.mu.Unlock()

	e.phMu.Lock()
	e.ph.Load(text)
	e.window.Reset()
	e.phMu.Unlock()

	e.refreshContent()
	e.refreshPopup()
	e.notifyChanged()
}

// SetSchema replaces the tables and columns offered as suggestions.
func (e *QueryEditor) SetSchema(idx *placeholder.SchemaIndex) {
	e.phMu.Lock()
	e.ph.SetSchema(idx)
	e.phMu.Unlock()
	e.refreshPopup()
}

// Suggestions returns the current suggestion state.
func (e *QueryEditor) Suggestions() placeholder.State {
	e.phMu.Lock()
	defer e.phMu.Unlock()
	return e.ph.State()
}

func (e *QueryEditor) SetOnChanged(fn func(string)) {
	e.mu.Lock()
	e.onChanged = fn
	e.mu.Unlock()
}

// SetPlaceHolder sets text shown when the editor is empty and unfocused.
func (e *QueryEditor) SetPlaceHolder(text string) {
	e.mu.Lock()
	e.placeholder = text
	e.mu.Unlock()
	e.refreshContent()
}

func (e *QueryEditor) notifyChanged() {
	e.mu.Lock()
	fn := e.onChanged
	e.mu.Unlock()
	if fn != nil {
		fn(e.Text())
	}
}

// caretOffsetLocked converts the cursor to a byte offset in the joined text.
func (e *QueryEditor) caretOffsetLocked() int {
	off := 0
	for i := 0; i < e.cursorRow; i++ {
		off += len(e.lines[i]) + 1
	}
	return off + e.cursorCol
}

// setCaretOffsetLocked places the cursor at a byte offset in the joined text.
func (e *QueryEditor) setCaretOffsetLocked(off int) {
	for row, line := range e.lines {
		if off <= len(line) || row == len(e.lines)-1 {
			e.cursorRow = row
			e.cursorCol = min(off, len(line))
			return
		}
		off -= len(line) + 1
	}
}

// syncEdit feeds the current text and caret to the suggestion engine.
func (e *QueryEditor) syncEdit() {
	e.mu.Lock()
	text := strings.Join(e.lines, "\n")
	caret := e.caretOffsetLocked()
	e.mu.Unlock()

	e.phMu.Lock()
	e.ph.TextChanged(text, caret)
	e.phMu.Unlock()
	e.refreshPopup()
}

// syncCaret reports a caret move that did not change the text.
func (e *QueryEditor) syncCaret() {
	e.mu.Lock()
	caret := e.caretOffsetLocked()
	e.mu.Unlock()

	e.phMu.Lock()
	e.ph.MoveCaret(caret)
	e.phMu.Unlock()
	e.refreshPopup()
}

// applyAccepted copies an accepted suggestion back into the grid.
func (e *QueryEditor) applyAccepted() {
	e.phMu.Lock()
	st := e.ph.State()
	e.phMu.Unlock()

	e.mu.Lock()
	e.saveUndoLocked()
	e.lines = strings.Split(st.Text, "\n")
	e.hasSelection = false
	e.setCaretOffsetLocked(st.Caret)
	e.mu.Unlock()

	e.resetBlink()
	e.refreshContent()
	e.refreshPopup()
	e.notifyChanged()
}

// handleSuggestionKey routes navigation keys to the open popup. It reports
// whether the key was consumed.
func (e *QueryEditor) handleSuggestionKey(name fyne.KeyName) bool {
	e.phMu.Lock()
	if !e.ph.State().Suggesting() {
		e.phMu.Unlock()
		return false
	}
	var consumed, accepted bool
	switch name {
	case fyne.KeyDown:
		consumed = e.ph.ArrowDown()
	case fyne.KeyUp:
		consumed = e.ph.ArrowUp()
	case fyne.KeyReturn, fyne.KeyEnter:
		accepted = e.ph.Enter()
		consumed = accepted
	case fyne.KeyEscape:
		consumed = e.ph.Dismiss()
	}
	e.phMu.Unlock()

	if accepted {
		e.applyAccepted()
	} else if consumed {
		e.refreshPopup()
	}
	return consumed
}

// orderedSelection returns selection bounds with start before end.
func (e *QueryEditor) orderedSelection() (sRow, sCol, eRow, eCol int) {
	if e.anchorRow < e.cursorRow || (e.anchorRow == e.cursorRow && e.anchorCol <= e.cursorCol) {
		return e.anchorRow, e.anchorCol, e.cursorRow, e.cursorCol
	}
	return e.cursorRow, e.cursorCol, e.anchorRow, e.anchorCol
}

// selectedTextLocked returns the text within the selection. Caller must hold mu.
func (e *QueryEditor) selectedTextLocked() string {
	sRow, sCol, eRow, eCol := e.orderedSelection()
	if sRow == eRow {
		return e.lines[sRow][sCol:eCol]
	}
	var parts []string
	parts = append(parts, e.lines[sRow][sCol:])
	for i := sRow + 1; i < eRow; i++ {
		parts = append(parts, e.lines[i])
	}
	parts = append(parts, e.lines[eRow][:eCol])
	return strings.Join(parts, "\n")
}

// deleteSelectionLocked removes selected text and positions cursor. Caller must hold mu.
func (e *QueryEditor) deleteSelectionLocked() {
	if !e.hasSelection {
		return
	}
	sRow, sCol, eRow, eCol := e.orderedSelection()
	before := e.lines[sRow][:sCol]
	after := e.lines[eRow][eCol:]
	e.lines[sRow] = before + after
	if eRow > sRow {
		e.lines = append(e.lines[:sRow+1], e.lines[eRow+1:]...)
	}
	e.cursorRow = sRow
	e.cursorCol = sCol
	e.hasSelection = false
}

func (e *QueryEditor) beginSelectionLocked() {
	if !e.hasSelection {
		e.anchorRow = e.cursorRow
		e.anchorCol = e.cursorCol
		e.hasSelection = true
	}
}

func (e *QueryEditor) snapshotLocked() undoEntry {
	snap := undoEntry{
		lines:     make([]string, len(e.lines)),
		cursorRow: e.cursorRow,
		cursorCol: e.cursorCol,
	}
	copy(snap.lines, e.lines)
	return snap
}

func (e *QueryEditor) saveUndoLocked() {
	e.undoStack = append(e.undoStack, e.snapshotLocked())
	if len(e.undoStack) > maxUndoStack {
		e.undoStack = e.undoStack[1:]
	}
	e.redoStack = e.redoStack[:0]
}

func (e *QueryEditor) doUndo() {
	e.mu.Lock()
	if len(e.undoStack) == 0 {
		e.mu.Unlock()
		return
	}
	e.redoStack = append(e.redoStack, e.snapshotLocked())
	snap := e.undoStack[len(e.undoStack)-1]
	e.undoStack = e.undoStack[:len(e.undoStack)-1]
	e.restoreLocked(snap)
	e.mu.Unlock()
	e.afterEdit()
}

func (e *QueryEditor) doRedo() {
	e.mu.Lock()
	if len(e.redoStack) == 0 {
		e.mu.Unlock()
		return
	}
	e.undoStack = append(e.undoStack, e.snapshotLocked())
	snap := e.redoStack[len(e.redoStack)-1]
	e.redoStack = e.redoStack[:len(e.redoStack)-1]
	e.restoreLocked(snap)
	e.mu.Unlock()
	e.afterEdit()
}

func (e *QueryEditor) restoreLocked(snap undoEntry) {
	e.lines = snap.lines
	e.cursorRow = snap.cursorRow
	e.cursorCol = snap.cursorCol
	e.hasSelection = false
}

// afterEdit redraws and notifies listeners once the text changed.
func (e *QueryEditor) afterEdit() {
	e.resetBlink()
	e.refreshContent()
	e.notifyChanged()
	e.syncEdit()
}

// afterMove redraws after a caret move.
func (e *QueryEditor) afterMove() {
	e.resetBlink()
	e.refreshContent()
	e.syncCaret()
}

func (e *QueryEditor) cursorLeftLocked() {
	if e.cursorCol > 0 {
		_, size := utf8.DecodeLastRuneInString(e.lines[e.cursorRow][:e.cursorCol])
		e.cursorCol -= size
	} else if e.cursorRow > 0 {
		e.cursorRow--
		e.cursorCol = len(e.lines[e.cursorRow])
	}
}

func (e *QueryEditor) cursorRightLocked() {
	line := e.lines[e.cursorRow]
	if e.cursorCol < len(line) {
		_, size := utf8.DecodeRuneInString(line[e.cursorCol:])
		e.cursorCol += size
	} else if e.cursorRow < len(e.lines)-1 {
		e.cursorRow++
		e.cursorCol = 0
	}
}

func (e *QueryEditor) cursorUpLocked() {
	if e.cursorRow > 0 {
		e.cursorRow--
		e.cursorCol = snapCol(e.lines[e.cursorRow], e.cursorCol)
	}
}

func (e *QueryEditor) cursorDownLocked() {
	if e.cursorRow < len(e.lines)-1 {
		e.cursorRow++
		e.cursorCol = snapCol(e.lines[e.cursorRow], e.cursorCol)
	}
}

// snapCol clamps a byte column to line and moves it back onto a rune start.
func snapCol(line string, col int) int {
	if col > len(line) {
		return len(line)
	}
	for col > 0 && !utf8.RuneStart(line[col]) {
		col--
	}
	return col
}

// runeColToByte converts a grid cell column to a byte column in line.
func runeColToByte(line string, cells int) int {
	i := 0
	for cells > 0 && i < len(line) {
		_, size := utf8.DecodeRuneInString(line[i:])
		i += size
		cells--
	}
	return i
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_'
}

func (e *QueryEditor) wordLeftLocked() {
	line := e.lines[e.cursorRow]
	if e.cursorCol == 0 {
		if e.cursorRow > 0 {
			e.cursorRow--
			e.cursorCol = len(e.lines[e.cursorRow])
		}
		return
	}
	col := e.cursorCol
	for col > 0 && !isWordByte(line[col-1]) {
		col--
	}
	for col > 0 && isWordByte(line[col-1]) {
		col--
	}
	e.cursorCol = snapCol(line, col)
}

func (e *QueryEditor) wordRightLocked() {
	line := e.lines[e.cursorRow]
	if e.cursorCol >= len(line) {
		if e.cursorRow < len(e.lines)-1 {
			e.cursorRow++
			e.cursorCol = 0
		}
		return
	}
	col := e.cursorCol
	for col < len(line) && isWordByte(line[col]) {
		col++
	}
	for col < len(line) && !isWordByte(line[col]) {
		col++
	}
	e.cursorCol = snapCol(line, col)
}

func (e *QueryEditor) startBlink() {
	e.stopBlinkTimer()
	stop := make(chan struct{})
	e.mu.Lock()
	e.stopBlink = stop
	e.blinkOn = true
	e.mu.Unlock()
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.mu.Lock()
				e.blinkOn = !e.blinkOn
				e.mu.Unlock()
				e.refreshContent()
			}
		}
	}()
}

func (e *QueryEditor) stopBlinkTimer() {
	e.mu.Lock()
	if e.stopBlink != nil {
		close(e.stopBlink)
		e.stopBlink = nil
	}
	e.mu.Unlock()
}

func (e *QueryEditor) resetBlink() {
	e.mu.Lock()
	e.blinkOn = true
	e.mu.Unlock()
	e.startBlink()
}

func (e *QueryEditor) KeyDown(ev *fyne.KeyEvent) {
	if ev.Name == desktop.KeyShiftLeft || ev.Name == desktop.KeyShiftRight {
		e.mu.Lock()
		e.shifting = true
		e.mu.Unlock()
	}
}

func (e *QueryEditor) KeyUp(ev *fyne.KeyEvent) {
	if ev.Name == desktop.KeyShiftLeft || ev.Name == desktop.KeyShiftRight {
		e.mu.Lock()
		e.shifting = false
		e.mu.Unlock()
	}
}

func (e *QueryEditor) FocusGained() {
	e.mu.Lock()
	e.focused = true
	e.blinkOn = true
	e.mu.Unlock()
	e.startBlink()
	e.refreshContent()
}

// FocusLost commits the text and closes the popup.
func (e *QueryEditor) FocusLost() {
	e.stopBlinkTimer()
	e.mu.Lock()
	e.focused = false
	e.hasSelection = false
	e.shifting = false
	e.mu.Unlock()

	e.phMu.Lock()
	e.ph.Blur()
	e.ph.Dismiss()
	e.phMu.Unlock()

	e.refreshContent()
	e.refreshPopup()
}

func (e *QueryEditor) TypedRune(r rune) {
	e.mu.Lock()
	e.saveUndoLocked()
	if e.hasSelection {
		e.deleteSelectionLocked()
	}
	line := e.lines[e.cursorRow]
	s := string(r)
	e.lines[e.cursorRow] = line[:e.cursorCol] + s + line[e.cursorCol:]
	e.cursorCol += len(s)
	e.mu.Unlock()
	e.afterEdit()
}

func (e *QueryEditor) TypedKey(ev *fyne.KeyEvent) {
	if e.handleSuggestionKey(ev.Name) {
		return
	}

	e.mu.Lock()
	edited := true
	switch ev.Name {
	case fyne.KeyReturn, fyne.KeyEnter, fyne.KeyBackspace, fyne.KeyDelete, fyne.KeyTab:
		e.saveUndoLocked()
	}
	switch ev.Name {
	case fyne.KeyReturn, fyne.KeyEnter:
		if e.hasSelection {
			e.deleteSelectionLocked()
		}
		line := e.lines[e.cursorRow]
		before := line[:e.cursorCol]
		after := line[e.cursorCol:]
		e.lines[e.cursorRow] = before
		newLines := make([]string, len(e.lines)+1)
		copy(newLines, e.lines[:e.cursorRow+1])
		newLines[e.cursorRow+1] = after
		copy(newLines[e.cursorRow+2:], e.lines[e.cursorRow+1:])
		e.lines = newLines
		e.cursorRow++
		e.cursorCol = 0

	case fyne.KeyBackspace:
		if e.hasSelection {
			e.deleteSelectionLocked()
		} else if e.cursorCol > 0 {
			line := e.lines[e.cursorRow]
			_, size := utf8.DecodeLastRuneInString(line[:e.cursorCol])
			e.lines[e.cursorRow] = line[:e.cursorCol-size] + line[e.cursorCol:]
			e.cursorCol -= size
		} else if e.cursorRow > 0 {
			prevLen := len(e.lines[e.cursorRow-1])
			e.lines[e.cursorRow-1] += e.lines[e.cursorRow]
			e.lines = append(e.lines[:e.cursorRow], e.lines[e.cursorRow+1:]...)
			e.cursorRow--
			e.cursorCol = prevLen
		}

	case fyne.KeyDelete:
		if e.hasSelection {
			e.deleteSelectionLocked()
		} else {
			line := e.lines[e.cursorRow]
			if e.cursorCol < len(line) {
				_, size := utf8.DecodeRuneInString(line[e.cursorCol:])
				e.lines[e.cursorRow] = line[:e.cursorCol] + line[e.cursorCol+size:]
			} else if e.cursorRow < len(e.lines)-1 {
				e.lines[e.cursorRow] += e.lines[e.cursorRow+1]
				e.lines = append(e.lines[:e.cursorRow+1], e.lines[e.cursorRow+2:]...)
			}
		}

	case fyne.KeyLeft:
		edited = false
		if e.shifting {
			e.beginSelectionLocked()
			e.cursorLeftLocked()
		} else if e.hasSelection {
			sRow, sCol, _, _ := e.orderedSelection()
			e.cursorRow, e.cursorCol = sRow, sCol
			e.hasSelection = false
		} else {
			e.cursorLeftLocked()
		}

	case fyne.KeyRight:
		edited = false
		if e.shifting {
			e.beginSelectionLocked()
			e.cursorRightLocked()
		} else if e.hasSelection {
			_, _, eRow, eCol := e.orderedSelection()
			e.cursorRow, e.cursorCol = eRow, eCol
			e.hasSelection = false
		} else {
			e.cursorRightLocked()
		}

	case fyne.KeyUp:
		edited = false
		if e.shifting {
			e.beginSelectionLocked()
		} else {
			e.hasSelection = false
		}
		e.cursorUpLocked()

	case fyne.KeyDown:
		edited = false
		if e.shifting {
			e.beginSelectionLocked()
		} else {
			e.hasSelection = false
		}
		e.cursorDownLocked()

	case fyne.KeyHome:
		edited = false
		if e.shifting {
			e.beginSelectionLocked()
		} else {
			e.hasSelection = false
		}
		e.cursorCol = 0

	case fyne.KeyEnd:
		edited = false
		if e.shifting {
			e.beginSelectionLocked()
		} else {
			e.hasSelection = false
		}
		e.cursorCol = len(e.lines[e.cursorRow])

	case fyne.KeyTab:
		if e.hasSelection {
			e.deleteSelectionLocked()
		}
		line := e.lines[e.cursorRow]
		e.lines[e.cursorRow] = line[:e.cursorCol] + "    " + line[e.cursorCol:]
		e.cursorCol += 4

	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	if edited {
		e.afterEdit()
	} else {
		e.afterMove()
	}
}

func (e *QueryEditor) clampPositionLocked(row, cells int) (int, int) {
	row = max(0, min(row, len(e.lines)-1))
	return row, runeColToByte(e.lines[row], max(cells, 0))
}

// popupItemAt returns the suggestion index under pos, or -1.
func (e *QueryEditor) popupItemAt(pos fyne.Position) int {
	e.mu.Lock()
	shown := e.popShown
	x, y, w, h, itemH := e.popX, e.popY, e.popW, e.popH, e.popItemH
	e.mu.Unlock()
	if !shown || itemH <= 0 {
		return -1
	}
	if pos.X < x || pos.X > x+w || pos.Y < y || pos.Y >= y+h {
		return -1
	}
	e.phMu.Lock()
	idx := e.window.First + int((pos.Y-y)/itemH)
	e.phMu.Unlock()
	return idx
}

func (e *QueryEditor) Tapped(ev *fyne.PointEvent) {
	if idx := e.popupItemAt(ev.Position); idx >= 0 {
		e.phMu.Lock()
		accepted := e.ph.Click(idx)
		e.phMu.Unlock()
		if accepted {
			e.applyAccepted()
		}
		return
	}

	if c := fyne.CurrentApp().Driver().CanvasForObject(e); c != nil {
		c.Focus(e)
	}

	row, col := e.grid.CursorLocationForPosition(ev.Position)
	e.mu.Lock()
	e.cursorRow, e.cursorCol = e.clampPositionLocked(row, col)
	e.hasSelection = false
	e.mu.Unlock()
	e.afterMove()
}

func (e *QueryEditor) Dragged(ev *fyne.DragEvent) {
	if c := fyne.CurrentApp().Driver().CanvasForObject(e); c != nil {
		c.Focus(e)
	}

	e.mu.Lock()
	if !e.dragging {
		startPos := fyne.NewPos(ev.Position.X-ev.Dragged.DX, ev.Position.Y-ev.Dragged.DY)
		row, col := e.grid.CursorLocationForPosition(startPos)
		e.anchorRow, e.anchorCol = e.clampPositionLocked(row, col)
		e.hasSelection = true
		e.dragging = true
	}
	row, col := e.grid.CursorLocationForPosition(ev.Position)
	e.cursorRow, e.cursorCol = e.clampPositionLocked(row, col)
	e.mu.Unlock()
	e.refreshContent()
}

func (e *QueryEditor) DragEnd() {
	e.mu.Lock()
	e.dragging = false
	if e.hasSelection && e.anchorRow == e.cursorRow && e.anchorCol == e.cursorCol {
		e.hasSelection = false
	}
	e.mu.Unlock()
	e.refreshContent()
	e.syncCaret()
}

func (e *QueryEditor) TypedShortcut(s fyne.Shortcut) {
	if cs, ok := s.(*desktop.CustomShortcut); ok {
		e.handleCustomShortcut(cs)
		return
	}

	switch s.(type) {
	case *fyne.ShortcutCopy:
		e.doCopy()
	case *fyne.ShortcutPaste:
		e.doPaste()
	case *fyne.ShortcutCut:
		e.doCut()
	case *fyne.ShortcutSelectAll:
		e.doSelectAll()
	case *fyne.ShortcutUndo:
		e.doUndo()
	case *fyne.ShortcutRedo:
		e.doRedo()
	}
}

func (e *QueryEditor) handleCustomShortcut(cs *desktop.CustomShortcut) {
	// Ctrl/Cmd+Enter runs the query.
	if cs.KeyName == fyne.KeyReturn {
		if e.OnSubmit != nil {
			e.OnSubmit()
		}
		return
	}

	hasWordMod := cs.Modifier&(fyne.KeyModifierSuper|fyne.KeyModifierControl|fyne.KeyModifierAlt) != 0
	hasShift := cs.Modifier&fyne.KeyModifierShift != 0
	hasCmdOrCtrl := cs.Modifier&(fyne.KeyModifierSuper|fyne.KeyModifierControl) != 0

	move := func(fn func()) {
		e.mu.Lock()
		if hasShift {
			e.beginSelectionLocked()
		} else {
			e.hasSelection = false
		}
		fn()
		e.mu.Unlock()
		e.afterMove()
	}

	switch cs.KeyName {
	case fyne.KeyZ:
		if hasCmdOrCtrl {
			if hasShift {
				e.doRedo()
			} else {
				e.doUndo()
			}
		}
	case fyne.KeyLeft:
		if hasWordMod {
			move(e.wordLeftLocked)
		}
	case fyne.KeyRight:
		if hasWordMod {
			move(e.wordRightLocked)
		}
	case fyne.KeyUp:
		if hasShift {
			move(e.cursorUpLocked)
		}
	case fyne.KeyDown:
		if hasShift {
			move(e.cursorDownLocked)
		}
	case fyne.KeyHome:
		if hasShift {
			move(func() { e.cursorCol = 0 })
		}
	case fyne.KeyEnd:
		if hasShift {
			move(func() { e.cursorCol = len(e.lines[e.cursorRow]) })
		}
	case fyne.KeyBackspace:
		// Cmd+Backspace deletes to start of line, Alt+Backspace the previous word.
		e.mu.Lock()
		e.saveUndoLocked()
		if e.hasSelection {
			e.deleteSelectionLocked()
		} else if hasCmdOrCtrl {
			line := e.lines[e.cursorRow]
			e.lines[e.cursorRow] = line[e.cursorCol:]
			e.cursorCol = 0
		} else if cs.Modifier&fyne.KeyModifierAlt != 0 {
			oldCol := e.cursorCol
			e.wordLeftLocked()
			line := e.lines[e.cursorRow]
			e.lines[e.cursorRow] = line[:e.cursorCol] + line[oldCol:]
		}
		e.mu.Unlock()
		e.afterEdit()
	}
}

func (e *QueryEditor) doSelectAll() {
	e.mu.Lock()
	if len(e.lines) == 1 && e.lines[0] == "" {
		e.mu.Unlock()
		return
	}
	e.anchorRow = 0
	e.anchorCol = 0
	e.cursorRow = len(e.lines) - 1
	e.cursorCol = len(e.lines[e.cursorRow])
	e.hasSelection = true
	e.mu.Unlock()
	e.refreshContent()
}

func (e *QueryEditor) doCopy() {
	e.mu.Lock()
	var text string
	if e.hasSelection {
		text = e.selectedTextLocked()
	}
	e.mu.Unlock()
	if text != "" {
		fyne.CurrentApp().Clipboard().SetContent(text)
	}
}

func (e *QueryEditor) doCut() {
	e.mu.Lock()
	if !e.hasSelection {
		e.mu.Unlock()
		return
	}
	e.saveUndoLocked()
	text := e.selectedTextLocked()
	e.deleteSelectionLocked()
	e.mu.Unlock()
	if text != "" {
		fyne.CurrentApp().Clipboard().SetContent(text)
	}
	e.afterEdit()
}

func (e *QueryEditor) doPaste() {
	content := fyne.CurrentApp().Clipboard().Content()
	if content == "" {
		return
	}
	e.insertText(content)
}

// insertText inserts text at the cursor, replacing any selection.
func (e *QueryEditor) insertText(content string) {
	pasteLines := strings.Split(content, "\n")

	e.mu.Lock()
	e.saveUndoLocked()
	if e.hasSelection {
		e.deleteSelectionLocked()
	}
	line := e.lines[e.cursorRow]
	before := line[:e.cursorCol]
	after := line[e.cursorCol:]

	if len(pasteLines) == 1 {
		e.lines[e.cursorRow] = before + pasteLines[0] + after
		e.cursorCol += len(pasteLines[0])
	} else {
		e.lines[e.cursorRow] = before + pasteLines[0]
		newLines := make([]string, 0, len(e.lines)+len(pasteLines)-1)
		newLines = append(newLines, e.lines[:e.cursorRow+1]...)
		newLines = append(newLines, pasteLines[1:len(pasteLines)-1]...)
		lastPaste := pasteLines[len(pasteLines)-1]
		newLines = append(newLines, lastPaste+after)
		newLines = append(newLines, e.lines[e.cursorRow+1:]...)
		e.lines = newLines
		e.cursorRow += len(pasteLines) - 1
		e.cursorCol = len(lastPaste)
	}
	e.mu.Unlock()
	e.afterEdit()
}

func (e *QueryEditor) AcceptsTab() bool {
	return true
}

func (e *QueryEditor) refreshContent() {
	e.mu.Lock()
	lines := make([]string, len(e.lines))
	copy(lines, e.lines)
	focused := e.focused
	blinkOn := e.blinkOn
	ph := e.placeholder
	cur := gridPos{e.cursorRow, e.cursorCol}
	var sel *[2]gridPos
	if e.hasSelection {
		sRow, sCol, eRow, eCol := e.orderedSelection()
		sel = &[2]gridPos{{sRow, sCol}, {eRow, eCol}}
	}
	e.mu.Unlock()

	fullText := strings.Join(lines, "\n")
	if fullText == "" && !focused && ph != "" {
		e.showPlaceholder(ph)
		return
	}

	rows := e.buildGridRows(fullText, lines, cur, focused && blinkOn, sel)
	fyne.Do(func() {
		e.grid.Rows = rows
		e.grid.Refresh()
	})
}

func (e *QueryEditor) showPlaceholder(text string) {
	th := fyne.CurrentApp().Settings().Theme()
	v := fyne.CurrentApp().Settings().ThemeVariant()
	style := &widget.CustomTextGridStyle{FGColor: th.Color(theme.ColorNamePlaceHolder, v)}

	phLines := strings.Split(text, "\n")
	rows := make([]widget.TextGridRow, len(phLines))
	for i, line := range phLines {
		cells := make([]widget.TextGridCell, 0, len(line))
		for _, r := range line {
			cells = append(cells, widget.TextGridCell{Rune: r, Style: style})
		}
		rows[i] = widget.TextGridRow{Cells: cells}
	}

	fyne.Do(func() {
		e.grid.Rows = rows
		e.grid.Refresh()
	})
}

// gridPos is a line and byte column.
type gridPos struct{ r, c int }

func (p gridPos) before(q gridPos) bool {
	return p.r < q.r || (p.r == q.r && p.c < q.c)
}

// syntaxColors maps every byte position to a theme color name: chroma
// token classes first, then placeholder spans on top.
func (e *QueryEditor) syntaxColors(fullText string, lines []string) map[gridPos]fyne.ThemeColorName {
	out := map[gridPos]fyne.ThemeColorName{}
	if e.lexer != nil {
		if iter, err := e.lexer.Tokenise(nil, fullText); err == nil {
			row, col := 0, 0
			for _, tok := range iter.Tokens() {
				name := tokenColorName(tok.Type)
				for _, ch := range tok.Value {
					if ch == '\n' {
						row++
						col = 0
						continue
					}
					if name != "" {
						out[gridPos{row, col}] = name
					}
					col += utf8.RuneLen(ch)
				}
			}
		}
	}
	for i, line := range lines {
		for _, span := range placeholderSpans(line) {
			for j := span[0]; j < span[1]; j++ {
				out[gridPos{i, j}] = colorSQLPlaceholder
			}
		}
	}
	return out
}

func (e *QueryEditor) buildGridRows(fullText string, lines []string, cur gridPos, showCursor bool, sel *[2]gridPos) []widget.TextGridRow {
	th := fyne.CurrentApp().Settings().Theme()
	v := fyne.CurrentApp().Settings().ThemeVariant()

	selectionColor := th.Color(theme.ColorNameSelection, v)
	cursorColor := th.Color(theme.ColorNamePrimary, v)
	cursorTextColor := th.Color(theme.ColorNameForegroundOnPrimary, v)
	cursorStyle := &widget.CustomTextGridStyle{FGColor: cursorTextColor, BGColor: cursorColor}

	syntax := e.syntaxColors(fullText, lines)
	inSel := func(p gridPos) bool {
		return sel != nil && !p.before(sel[0]) && p.before(sel[1])
	}

	rows := make([]widget.TextGridRow, len(lines))
	for i, line := range lines {
		cells := make([]widget.TextGridCell, 0, len(line)+1)
		for j, r := range line {
			p := gridPos{i, j}
			cell := widget.TextGridCell{Rune: r}

			var fg color.Color
			if name, ok := syntax[p]; ok {
				fg = th.Color(name, v)
			}

			switch {
			case showCursor && sel == nil && p == cur:
				cell.Style = cursorStyle
			case inSel(p):
				cell.Style = &widget.CustomTextGridStyle{FGColor: fg, BGColor: selectionColor}
			case fg != nil:
				cell.Style = &widget.CustomTextGridStyle{FGColor: fg}
			}
			cells = append(cells, cell)
		}

		// Cursor or selection past the last character.
		end := gridPos{i, len(line)}
		if showCursor && sel == nil && cur == end {
			cells = append(cells, widget.TextGridCell{Rune: ' ', Style: cursorStyle})
		} else if inSel(end) {
			cells = append(cells, widget.TextGridCell{
				Rune:  ' ',
				Style: &widget.CustomTextGridStyle{BGColor: selectionColor},
			})
		}

		rows[i] = widget.TextGridRow{Cells: cells}
	}
	return rows
}

// placeholderSpans returns the byte ranges of ${...} in line. An unclosed
// placeholder runs to the end of the line.
func placeholderSpans(line string) [][2]int {
	var spans [][2]int
	for i := 0; i < len(line); {
		open := strings.Index(line[i:], "${")
		if open < 0 {
			break
		}
		start := i + open
		end := len(line)
		if rel := strings.IndexByte(line[start+2:], '}'); rel >= 0 {
			end = start + 2 + rel + 1
		}
		spans = append(spans, [2]int{start, end})
		i = end
	}
	return spans
}

const (
	colorSQLKeyword     fyne.ThemeColorName = "sqlKeyword"
	colorSQLFunction    fyne.ThemeColorName = "sqlFunction"
	colorSQLString      fyne.ThemeColorName = "sqlString"
	colorSQLNumber      fyne.ThemeColorName = "sqlNumber"
	colorSQLComment     fyne.ThemeColorName = "sqlComment"
	colorSQLPlaceholder fyne.ThemeColorName = "sqlPlaceholder"
)

func tokenColorName(t chroma.TokenType) fyne.ThemeColorName {
	if t == chroma.NameBuiltin || t == chroma.NameFunction {
		return colorSQLFunction
	}
	switch {
	case t.InCategory(chroma.Keyword):
		return colorSQLKeyword
	case t.InCategory(chroma.LiteralString):
		return colorSQLString
	case t.InCategory(chroma.LiteralNumber):
		return colorSQLNumber
	case t.InCategory(chroma.Comment):
		return colorSQLComment
	}
	return ""
}

// refreshPopup lays out the suggestion list at the state's anchor.
func (e *QueryEditor) refreshPopup() {
	e.phMu.Lock()
	st := e.ph.State()
	first := e.window.First
	visible := e.window.Visible
	e.phMu.Unlock()

	e.mu.Lock()
	bg, selBg, texts := e.popBg, e.popSelBg, e.popTexts
	e.mu.Unlock()

	if !st.Suggesting() || st.Anchor == nil {
		e.mu.Lock()
		e.popShown = false
		e.mu.Unlock()
		if bg != nil {
			fyne.Do(func() {
				bg.Hide()
				selBg.Hide()
				for _, t := range texts {
					t.Hide()
				}
			})
		}
		return
	}

	first = max(0, min(first, len(st.Suggestions)-1))
	n := min(visible, len(st.Suggestions)-first)
	items := st.Suggestions[first : first+n]

	textSize := theme.TextSize()
	style := fyne.TextStyle{Monospace: true}
	pad := theme.Padding()
	itemH := fyne.MeasureText("M", textSize, style).Height + pad
	w := float32(popupMinWidth)
	for _, s := range items {
		w = max(w, fyne.MeasureText(s, textSize, style).Width+2*pad)
	}
	x, y := st.Anchor.X, st.Anchor.Y

	e.mu.Lock()
	e.popShown = true
	e.popX, e.popY, e.popW, e.popH, e.popItemH = x, y, w, float32(n)*itemH, itemH
	e.mu.Unlock()

	if bg == nil {
		return
	}
	selRow := st.Highlighted - first

	fyne.Do(func() {
		th := fyne.CurrentApp().Settings().Theme()
		v := fyne.CurrentApp().Settings().ThemeVariant()

		bg.FillColor = th.Color(theme.ColorNameMenuBackground, v)
		bg.StrokeColor = th.Color(theme.ColorNameSeparator, v)
		bg.StrokeWidth = 1
		bg.Resize(fyne.NewSize(w, float32(n)*itemH))
		bg.Move(fyne.NewPos(x, y))
		bg.Show()
		bg.Refresh()

		if selRow >= 0 && selRow < n {
			selBg.FillColor = th.Color(theme.ColorNameSelection, v)
			selBg.Resize(fyne.NewSize(w, itemH))
			selBg.Move(fyne.NewPos(x, y+float32(selRow)*itemH))
			selBg.Show()
			selBg.Refresh()
		} else {
			selBg.Hide()
		}

		fg := th.Color(theme.ColorNameForeground, v)
		for i, t := range texts {
			if i >= n {
				t.Hide()
				continue
			}
			t.Text = items[i]
			t.Color = fg
			t.TextSize = textSize
			t.Move(fyne.NewPos(x+pad, y+float32(i)*itemH))
			t.Show()
			t.Refresh()
		}
	})
}

type queryEditorRenderer struct {
	editor  *QueryEditor
	grid    *widget.TextGrid
	objects []fyne.CanvasObject
}

func (e *QueryEditor) CreateRenderer() fyne.WidgetRenderer {
	e.ExtendBaseWidget(e)

	bg := canvas.NewRectangle(color.Transparent)
	bg.Hide()
	selBg := canvas.NewRectangle(color.Transparent)
	selBg.Hide()
	texts := make([]*canvas.Text, e.window.Visible)
	for i := range texts {
		t := canvas.NewText("", color.White)
		t.TextStyle = fyne.TextStyle{Monospace: true}
		t.TextSize = theme.TextSize()
		t.Hide()
		texts[i] = t
	}

	e.mu.Lock()
	e.popBg, e.popSelBg, e.popTexts = bg, selBg, texts
	e.mu.Unlock()

	objects := make([]fyne.CanvasObject, 0, 3+len(texts))
	objects = append(objects, e.grid, bg, selBg)
	for _, t := range texts {
		objects = append(objects, t)
	}
	return &queryEditorRenderer{editor: e, grid: e.grid, objects: objects}
}

func (r *queryEditorRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)
	r.grid.Move(fyne.NewPos(0, 0))
}

func (r *queryEditorRenderer) MinSize() fyne.Size {
	return r.grid.MinSize()
}

func (r *queryEditorRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *queryEditorRenderer) Refresh() {
	r.grid.Refresh()
}

func (r *queryEditorRenderer) Destroy() {
	r.editor.stopBlinkTimer()
}
