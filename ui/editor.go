package ui

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/farbodahm/sqldash/placeholder"
)

type RunQueryFunc func(connectionID int64, sql string)

// ConnectionOption is an entry of the connection selector.
type ConnectionOption struct {
	ID   int64
	Name string
}

// ReportDraft is the content of a report tab. ID is zero until saved.
type ReportDraft struct {
	ID           int64
	Name         string
	SQL          string
	ConnectionID int64
}

type reportTab struct {
	editor       *QueryEditor
	reportID     int64
	name         string
	connectionID int64
}

type Editor struct {
	tabs        *container.DocTabs
	connections *widget.Select
	runBtn      *widget.Button
	stopBtn     *widget.Button
	saveBtn     *widget.Button

	opts QueryEditorOptions

	mu       sync.Mutex
	tabData  map[*container.TabItem]*reportTab
	tabCount int
	conns    []ConnectionOption
	schemas  map[int64]*placeholder.SchemaIndex

	RunQuery            RunQueryFunc
	OnStop              func()
	OnSave              func(ReportDraft)
	OnConnectionChanged func(connectionID int64)

	Container fyne.CanvasObject
}

func NewEditor(opts QueryEditorOptions) *Editor {
	e := &Editor{
		opts:    opts,
		tabData: make(map[*container.TabItem]*reportTab),
		schemas: make(map[int64]*placeholder.SchemaIndex),
	}

	e.connections = widget.NewSelect([]string{}, e.selectConnection)
	e.connections.PlaceHolder = "Select Connection"

	e.runBtn = widget.NewButton("Run", e.run)
	e.stopBtn = widget.NewButton("Stop", func() {
		if e.OnStop != nil {
			e.OnStop()
		}
	})
	e.saveBtn = widget.NewButton("Save Report", e.save)

	e.tabs = container.NewDocTabs()
	e.tabs.OnClosed = func(tab *container.TabItem) {
		e.mu.Lock()
		delete(e.tabData, tab)
		e.mu.Unlock()
	}
	e.tabs.CreateTab = func() *container.TabItem {
		return e.newTab(ReportDraft{ConnectionID: e.selectedConnectionID()})
	}
	e.tabs.OnSelected = func(tab *container.TabItem) {
		e.mu.Lock()
		rt, ok := e.tabData[tab]
		name := ""
		if ok {
			name = e.connectionNameLocked(rt.connectionID)
		}
		e.mu.Unlock()
		if ok {
			// Assigning Selected directly skips the OnChanged callback.
			e.connections.Selected = name
			e.connections.Refresh()
		}
	}

	first := e.newTab(ReportDraft{})
	e.tabs.Append(first)
	e.tabs.Select(first)

	toolbar := container.NewHBox(e.connections, e.runBtn, e.stopBtn, e.saveBtn, layout.NewSpacer())
	e.Container = container.NewBorder(toolbar, nil, nil, nil, e.tabs)

	return e
}

func (e *Editor) newTab(d ReportDraft) *container.TabItem {
	e.mu.Lock()
	e.tabCount++
	title := d.Name
	if title == "" {
		title = fmt.Sprintf("Report %d", e.tabCount)
	}
	idx := e.schemas[d.ConnectionID]
	e.mu.Unlock()

	editor := NewQueryEditor(e.opts)
	editor.SetPlaceHolder("Enter SQL, type ${ for tables and columns...")
	editor.OnSubmit = e.run
	editor.SetSchema(idx)
	if d.SQL != "" {
		editor.SetText(d.SQL)
	}

	tab := container.NewTabItem(title, editor)

	e.mu.Lock()
	e.tabData[tab] = &reportTab{
		editor:       editor,
		reportID:     d.ID,
		name:         d.Name,
		connectionID: d.ConnectionID,
	}
	e.mu.Unlock()
	return tab
}

func (e *Editor) current() (*container.TabItem, *reportTab) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tab := e.tabs.Selected()
	return tab, e.tabData[tab]
}

func (e *Editor) selectConnection(name string) {
	e.mu.Lock()
	var id int64
	for _, c := range e.conns {
		if c.Name == name {
			id = c.ID
			break
		}
	}
	rt := e.tabData[e.tabs.Selected()]
	var idx *placeholder.SchemaIndex
	if rt != nil {
		rt.connectionID = id
		idx = e.schemas[id]
	}
	e.mu.Unlock()

	if rt != nil {
		rt.editor.SetSchema(idx)
	}
	if id != 0 && e.OnConnectionChanged != nil {
		e.OnConnectionChanged(id)
	}
}

func (e *Editor) selectedConnectionID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		if c.Name == e.connections.Selected {
			return c.ID
		}
	}
	return 0
}

func (e *Editor) connectionNameLocked(id int64) string {
	for _, c := range e.conns {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (e *Editor) run() {
	_, rt := e.current()
	if rt == nil {
		return
	}
	sql := rt.editor.Text()
	if sql == "" || rt.connectionID == 0 {
		return
	}
	if e.RunQuery != nil {
		e.RunQuery(rt.connectionID, sql)
	}
}

func (e *Editor) save() {
	if e.OnSave != nil {
		e.OnSave(e.CurrentReport())
	}
}

// SetConnections replaces the selector options. The first connection is
// selected when nothing is.
func (e *Editor) SetConnections(conns []ConnectionOption) {
	e.mu.Lock()
	e.conns = conns
	e.mu.Unlock()

	names := make([]string, len(conns))
	for i, c := range conns {
		names[i] = c.Name
	}
	fyne.Do(func() {
		e.connections.Options = names
		e.connections.Refresh()
		if len(names) > 0 && e.connections.Selected == "" {
			e.connections.SetSelected(names[0])
		}
	})
}

// SelectConnection makes id the current tab's connection.
func (e *Editor) SelectConnection(id int64) {
	e.mu.Lock()
	name := e.connectionNameLocked(id)
	e.mu.Unlock()
	if name == "" {
		return
	}
	fyne.Do(func() {
		e.connections.SetSelected(name)
	})
}

// SetSchema stores the schema of a connection and hands it to every tab
// bound to that connection.
func (e *Editor) SetSchema(connectionID int64, idx *placeholder.SchemaIndex) {
	e.mu.Lock()
	e.schemas[connectionID] = idx
	var editors []*QueryEditor
	for _, rt := range e.tabData {
		if rt.connectionID == connectionID {
			editors = append(editors, rt.editor)
		}
	}
	e.mu.Unlock()

	for _, ed := range editors {
		ed.SetSchema(idx)
	}
}

func (e *Editor) GetCurrentSQL() string {
	_, rt := e.current()
	if rt == nil {
		return ""
	}
	return rt.editor.Text()
}

func (e *Editor) GetCurrentConnection() int64 {
	_, rt := e.current()
	if rt == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return rt.connectionID
}

func (e *Editor) SetSQL(sql string) {
	_, rt := e.current()
	if rt != nil {
		fyne.Do(func() {
			rt.editor.SetText(sql)
		})
	}
}

// InsertSQL appends sql to the current tab on a new line.
func (e *Editor) InsertSQL(sql string) {
	_, rt := e.current()
	if rt == nil {
		return
	}
	fyne.Do(func() {
		text := rt.editor.Text()
		if text != "" {
			text += "\n"
		}
		rt.editor.SetText(text + sql)
	})
}

// CurrentReport returns the selected tab as a report draft.
func (e *Editor) CurrentReport() ReportDraft {
	_, rt := e.current()
	if rt == nil {
		return ReportDraft{}
	}
	sql := rt.editor.Text()
	e.mu.Lock()
	defer e.mu.Unlock()
	return ReportDraft{ID: rt.reportID, Name: rt.name, SQL: sql, ConnectionID: rt.connectionID}
}

// OpenReport shows a saved report, reusing its tab when already open.
func (e *Editor) OpenReport(d ReportDraft) {
	e.mu.Lock()
	var existing *container.TabItem
	if d.ID != 0 {
		for tab, rt := range e.tabData {
			if rt.reportID == d.ID {
				existing = tab
				break
			}
		}
	}
	e.mu.Unlock()

	fyne.Do(func() {
		if existing != nil {
			e.tabs.Select(existing)
			return
		}
		tab := e.newTab(d)
		e.tabs.Append(tab)
		e.tabs.Select(tab)
	})
}

// MarkSaved records the store ID and name of the current tab's report.
func (e *Editor) MarkSaved(id int64, name string) {
	tab, rt := e.current()
	if rt == nil {
		return
	}
	e.mu.Lock()
	rt.reportID = id
	rt.name = name
	e.mu.Unlock()
	fyne.Do(func() {
		tab.Text = name
		e.tabs.Refresh()
	})
}

// Editors returns the query editors of all open tabs.
func (e *Editor) Editors() []*QueryEditor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*QueryEditor, 0, len(e.tabData))
	for _, rt := range e.tabData {
		out = append(out, rt.editor)
	}
	return out
}
