package placeholder

import (
	"strings"

	"github.com/go-logr/logr"
)

// State is a snapshot of the editor. Suggestions is non-empty exactly when
// Anchor is set, and Highlighted is -1 or a valid index into Suggestions.
type State struct {
	Text        string
	Caret       int
	Suggestions []string
	Highlighted int
	Anchor      *Point
}

// Suggesting reports whether the popup should be shown.
func (s State) Suggesting() bool { return len(s.Suggestions) > 0 }

// Option configures an Editor.
type Option func(*Editor)

// WithMeasurer sets how the popup anchor is computed. Defaults to Origin.
func WithMeasurer(m Measurer) Option {
	return func(e *Editor) {
		if m != nil {
			e.measurer = m
		}
	}
}

// WithScroller sets the popup list that follows the highlight.
func WithScroller(s Scroller) Option {
	return func(e *Editor) { e.scroller = s }
}

// WithDefaultAnchor sets the anchor used when measuring fails.
func WithDefaultAnchor(p Point) Option {
	return func(e *Editor) { e.defaultAnchor = p }
}

// WithCommitFunc sets the callback that receives the text on Blur.
func WithCommitFunc(fn func(text string)) Option {
	return func(e *Editor) { e.onCommit = fn }
}

// WithAutoClose makes accepted suggestions close the placeholder with "}".
func WithAutoClose(on bool) Option {
	return func(e *Editor) { e.autoClose = on }
}

func WithLogger(l logr.Logger) Option {
	return func(e *Editor) { e.log = l }
}

// Editor is the placeholder suggestion state machine. It has a single
// writer: the host must deliver events one at a time.
type Editor struct {
	state  State
	schema *SchemaIndex

	measurer      Measurer
	scroller      Scroller
	defaultAnchor Point
	onCommit      func(string)
	autoClose     bool
	log           logr.Logger
}

func NewEditor(opts ...Option) *Editor {
	e := &Editor{
		state:    State{Highlighted: -1},
		measurer: Origin,
		log:      logr.Discard(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// State returns a copy of the current state.
func (e *Editor) State() State {
	s := e.state
	s.Suggestions = append([]string(nil), e.state.Suggestions...)
	if e.state.Anchor != nil {
		p := *e.state.Anchor
		s.Anchor = &p
	}
	return s
}

func (e *Editor) Schema() *SchemaIndex { return e.schema }

// SetSchema swaps the schema snapshot and recomputes suggestions for the
// current text and caret.
func (e *Editor) SetSchema(idx *SchemaIndex) {
	e.schema = idx
	e.refresh()
}

// Load replaces the text with one supplied from outside, puts the caret at
// the end and closes the popup.
func (e *Editor) Load(text string) {
	e.state.Text = text
	e.state.Caret = len(text)
	e.clear()
}

// TextChanged records an edit and recomputes suggestions.
func (e *Editor) TextChanged(text string, caret int) {
	e.state.Text = text
	e.state.Caret = ClampCaret(text, caret)
	e.refresh()
}

// MoveCaret records a caret move that did not change the text.
func (e *Editor) MoveCaret(caret int) {
	caret = ClampCaret(e.state.Text, caret)
	if caret == e.state.Caret {
		return
	}
	e.state.Caret = caret
	e.updateAnchor()
}

// ArrowDown moves the highlight down, wrapping to the top. It returns false
// when there is nothing to navigate.
func (e *Editor) ArrowDown() bool {
	n := len(e.state.Suggestions)
	if n == 0 {
		return false
	}
	e.highlight((e.state.Highlighted + 1) % n)
	return true
}

// ArrowUp moves the highlight up, wrapping to the bottom.
func (e *Editor) ArrowUp() bool {
	n := len(e.state.Suggestions)
	if n == 0 {
		return false
	}
	e.highlight((e.state.Highlighted - 1 + n) % n)
	return true
}

func (e *Editor) highlight(i int) {
	e.state.Highlighted = i
	if e.scroller != nil {
		e.scroller.ScrollTo(i)
	}
}

// Enter accepts the highlighted suggestion. It returns false when nothing
// was accepted so the host can handle the key itself.
func (e *Editor) Enter() bool {
	h := e.state.Highlighted
	if h < 0 || h >= len(e.state.Suggestions) {
		return false
	}
	return e.accept(e.state.Suggestions[h])
}

// Click accepts suggestion i regardless of the highlight.
func (e *Editor) Click(i int) bool {
	if i < 0 || i >= len(e.state.Suggestions) {
		return false
	}
	return e.accept(e.state.Suggestions[i])
}

// Dismiss closes the popup without touching the text.
func (e *Editor) Dismiss() bool {
	if !e.state.Suggesting() {
		return false
	}
	e.clear()
	return true
}

// Blur hands the current text to the commit callback.
func (e *Editor) Blur() {
	if e.onCommit != nil {
		e.onCommit(e.state.Text)
	}
}

// accept splices candidate into the placeholder open at the current caret.
// If the caret is no longer inside one the text is left untouched.
func (e *Editor) accept(candidate string) bool {
	text, caret := e.state.Text, e.state.Caret
	m := Parse(text, caret)
	if !m.Open {
		e.log.V(1).Info("suggestion dropped, caret left placeholder", "candidate", candidate, "caret", caret)
		return false
	}

	rest := text[caret:]
	inserted := openMarker + m.Content + candidate
	newCaret := m.Start + len(inserted)
	if e.autoClose {
		if !strings.HasPrefix(rest, closeMarker) {
			inserted += closeMarker
		}
		newCaret += len(closeMarker)
	}

	e.state.Text = text[:m.Start] + inserted + rest
	e.state.Caret = newCaret
	e.clear()
	e.log.V(1).Info("suggestion accepted", "candidate", candidate, "caret", newCaret)
	return true
}

func (e *Editor) refresh() {
	m := Parse(e.state.Text, e.state.Caret)
	e.state.Suggestions = Suggest(m, e.schema)
	e.state.Highlighted = -1
	if e.scroller != nil && len(e.state.Suggestions) > 0 {
		e.scroller.ScrollTo(0)
	}
	e.updateAnchor()
}

func (e *Editor) clear() {
	e.state.Suggestions = nil
	e.state.Highlighted = -1
	e.state.Anchor = nil
}

func (e *Editor) updateAnchor() {
	if !e.state.Suggesting() {
		e.state.Anchor = nil
		return
	}
	p, err := e.measurer.MeasureOffset(e.state.Text, e.state.Caret)
	if err != nil {
		e.log.V(1).Info("caret measurement failed, using default anchor", "error", err.Error())
		p = e.defaultAnchor
	}
	e.state.Anchor = &p
}
