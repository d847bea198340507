package ui

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/go-logr/logr"

	"github.com/farbodahm/sqldash/placeholder"
)

// Node ID format:
//   "c:<connection id>"
//   "t:<connection id>/<table>"
//   "k:<connection id>/<table>/<column>"

func ConnectionNodeID(id int64) string { return "c:" + strconv.FormatInt(id, 10) }
func TableNodeID(id int64, table string) string {
	return fmt.Sprintf("t:%d/%s", id, table)
}
func ColumnNodeID(id int64, table, column string) string {
	return fmt.Sprintf("k:%d/%s/%s", id, table, column)
}

func ParseNodeID(id string) (kind string, connectionID int64, table, column string) {
	if len(id) < 3 || id[1] != ':' {
		return "", 0, "", ""
	}
	parts := strings.SplitN(id[2:], "/", 3)
	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "", 0, "", ""
	}
	kind, connectionID = id[:1], n
	if len(parts) >= 2 {
		table = parts[1]
	}
	if len(parts) >= 3 {
		column = parts[2]
	}
	return
}

type LoadSchemaFunc func(connectionID int64) (*placeholder.SchemaIndex, error)
type OnTableSelectedFunc func(connectionID int64, table string)
type OnColumnSelectedFunc func(connectionID int64, table, column string)

type explorerNode struct {
	id       string
	label    string
	depth    int // 0=connection/header, 1=table, 2=column
	isBranch bool
	expanded bool
	isHeader bool
}

const (
	headerRecent = "header:recent"
	headerAll    = "header:all"
)

// Explorer lists saved connections and, once loaded, their tables and
// columns.
type Explorer struct {
	list        *widget.List
	searchEntry *widget.Entry
	log         logr.Logger

	mu       sync.Mutex
	visible  []explorerNode            // flat list of currently visible nodes
	children map[string][]explorerNode // parent id -> loaded children
	loading  map[string]bool
	selected int64

	connections []ConnectionOption
	recent      []string // connection names from history

	recentExpanded bool
	allExpanded    bool

	searchFilter string

	LoadSchema           LoadSchemaFunc
	OnConnectionSelected func(connectionID int64)
	OnTableSelected      OnTableSelectedFunc
	OnColumnSelected     OnColumnSelectedFunc
	OnNewConnection      func()
	OnEditConnection     func(connectionID int64)
	OnDeleteConnection   func(connectionID int64)

	Container fyne.CanvasObject
}

func NewExplorer(log logr.Logger) *Explorer {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	e := &Explorer{
		log:            log,
		children:       make(map[string][]explorerNode),
		loading:        make(map[string]bool),
		recentExpanded: true,
		allExpanded:    true,
	}

	e.searchEntry = widget.NewEntry()
	e.searchEntry.SetPlaceHolder("Filter tables & columns...")
	e.searchEntry.OnChanged = func(text string) {
		e.mu.Lock()
		e.searchFilter = text
		e.mu.Unlock()
		e.rebuildVisible()
	}

	e.list = widget.NewList(
		func() int {
			e.mu.Lock()
			defer e.mu.Unlock()
			return len(e.visible)
		},
		func() fyne.CanvasObject {
			spacer := widget.NewLabel("")
			icon := widget.NewIcon(theme.NavigateNextIcon())
			label := canvas.NewText("template", color.White)
			leftGroup := container.NewHBox(spacer, icon)
			return container.NewBorder(nil, nil, leftGroup, nil, label)
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			e.mu.Lock()
			if id >= len(e.visible) {
				e.mu.Unlock()
				return
			}
			node := e.visible[id]
			e.mu.Unlock()

			c := obj.(*fyne.Container)
			label := c.Objects[0].(*canvas.Text)
			leftGroup := c.Objects[1].(*fyne.Container)
			spacer := leftGroup.Objects[0].(*widget.Label)
			icon := leftGroup.Objects[1].(*widget.Icon)

			spacer.SetText(strings.Repeat("    ", node.depth))

			label.Text = node.label
			label.Color = explorerNodeColor(node)
			label.TextSize = theme.Size(theme.SizeNameText)
			label.TextStyle = fyne.TextStyle{Bold: node.isHeader}

			switch {
			case node.isHeader || node.isBranch:
				if node.expanded {
					icon.SetResource(theme.MoveDownIcon())
				} else {
					icon.SetResource(theme.NavigateNextIcon())
				}
			default:
				icon.SetResource(theme.DocumentIcon())
			}
			label.Refresh()
		},
	)

	e.list.OnSelected = func(id widget.ListItemID) {
		e.list.UnselectAll()
		e.mu.Lock()
		if id >= len(e.visible) {
			e.mu.Unlock()
			return
		}
		node := e.visible[id]
		e.mu.Unlock()
		e.activate(node)
	}

	newBtn := widget.NewButtonWithIcon("", theme.ContentAddIcon(), func() {
		if e.OnNewConnection != nil {
			e.OnNewConnection()
		}
	})
	editBtn := widget.NewButtonWithIcon("", theme.DocumentCreateIcon(), func() {
		if id := e.SelectedConnection(); id != 0 && e.OnEditConnection != nil {
			e.OnEditConnection(id)
		}
	})
	deleteBtn := widget.NewButtonWithIcon("", theme.DeleteIcon(), func() {
		if id := e.SelectedConnection(); id != 0 && e.OnDeleteConnection != nil {
			e.OnDeleteConnection(id)
		}
	})
	toolbar := container.NewBorder(nil, nil, nil, container.NewHBox(newBtn, editBtn, deleteBtn), e.searchEntry)

	e.Container = container.NewBorder(toolbar, nil, nil, nil, e.list)
	e.rebuildVisible()

	return e
}

func (e *Explorer) activate(node explorerNode) {
	if node.isHeader {
		e.mu.Lock()
		switch node.id {
		case headerRecent:
			e.recentExpanded = !e.recentExpanded
		case headerAll:
			e.allExpanded = !e.allExpanded
		}
		e.mu.Unlock()
		e.rebuildVisible()
		return
	}

	kind, connID, table, column := ParseNodeID(node.id)
	switch kind {
	case "c":
		e.mu.Lock()
		e.selected = connID
		e.mu.Unlock()
		if e.OnConnectionSelected != nil {
			e.OnConnectionSelected(connID)
		}
		e.toggleBranch(node.id)
	case "t":
		if e.OnTableSelected != nil {
			e.OnTableSelected(connID, table)
		}
		e.toggleBranch(node.id)
	case "k":
		if e.OnColumnSelected != nil {
			e.OnColumnSelected(connID, table, column)
		}
	}
}

// rebuildVisible reconstructs the visible list from the connection lists,
// applying the search filter. Must NOT hold e.mu when calling.
func (e *Explorer) rebuildVisible() {
	e.mu.Lock()

	filter := strings.ToLower(e.searchFilter)

	expandedSet := make(map[string]bool)
	for _, n := range e.visible {
		if n.expanded {
			expandedSet[n.id] = true
		}
	}

	var nodes []explorerNode
	if filter != "" {
		// Search mode: connections with matching tables or columns, expanded.
		for _, c := range e.connections {
			matches := e.cachedMatchesLocked(c.ID, filter)
			nameMatch := strings.Contains(strings.ToLower(c.Name), filter)
			if !nameMatch && len(matches) == 0 {
				continue
			}
			nodes = append(nodes, explorerNode{
				id:       ConnectionNodeID(c.ID),
				label:    c.Name,
				isBranch: true,
				expanded: len(matches) > 0,
			})
			nodes = append(nodes, matches...)
		}
	} else {
		byName := make(map[string]ConnectionOption, len(e.connections))
		for _, c := range e.connections {
			byName[c.Name] = c
		}
		var recent []ConnectionOption
		for _, name := range e.recent {
			if c, ok := byName[name]; ok {
				recent = append(recent, c)
			}
		}

		if len(recent) > 0 {
			nodes = append(nodes, explorerNode{
				id:       headerRecent,
				label:    "⏱ Recent Connections",
				isHeader: true,
				expanded: e.recentExpanded,
			})
			if e.recentExpanded {
				nodes = e.appendConnectionsLocked(nodes, recent, expandedSet)
			}
		}

		nodes = append(nodes, explorerNode{
			id:       headerAll,
			label:    fmt.Sprintf("Connections (%d)", len(e.connections)),
			isHeader: true,
			expanded: e.allExpanded,
		})
		if e.allExpanded {
			nodes = e.appendConnectionsLocked(nodes, e.connections, expandedSet)
		}
	}

	e.visible = nodes
	e.mu.Unlock()
	fyne.Do(func() { e.list.Refresh() })
}

// Must be called with e.mu held.
func (e *Explorer) appendConnectionsLocked(nodes []explorerNode, conns []ConnectionOption, expandedSet map[string]bool) []explorerNode {
	for _, c := range conns {
		nid := ConnectionNodeID(c.ID)
		node := explorerNode{
			id:       nid,
			label:    c.Name,
			isBranch: true,
			expanded: expandedSet[nid],
		}
		nodes = append(nodes, node)
		if node.expanded {
			if cached, ok := e.children[nid]; ok {
				nodes = e.appendExpandedChildren(nodes, cached, expandedSet)
			}
		}
	}
	return nodes
}

// appendExpandedChildren recursively adds cached children (and their children) to the node list.
// Must be called with e.mu held.
func (e *Explorer) appendExpandedChildren(nodes []explorerNode, childNodes []explorerNode, expandedSet map[string]bool) []explorerNode {
	for _, c := range childNodes {
		c.expanded = expandedSet[c.id]
		nodes = append(nodes, c)
		if c.expanded {
			if cached, ok := e.children[c.id]; ok {
				nodes = e.appendExpandedChildren(nodes, cached, expandedSet)
			}
		}
	}
	return nodes
}

// cachedMatchesLocked returns table nodes whose name, or column nodes whose
// "table.column" label, contains filter.
// Must be called with e.mu held.
func (e *Explorer) cachedMatchesLocked(connID int64, filter string) []explorerNode {
	tblNodes, ok := e.children[ConnectionNodeID(connID)]
	if !ok {
		return nil
	}
	var matches []explorerNode
	for _, tbl := range tblNodes {
		if strings.Contains(strings.ToLower(tbl.label), filter) {
			matches = append(matches, explorerNode{id: tbl.id, label: tbl.label, depth: 1, isBranch: true})
		}
		for _, col := range e.children[tbl.id] {
			fq := tbl.label + "." + col.label
			if strings.Contains(strings.ToLower(fq), filter) {
				matches = append(matches, explorerNode{id: col.id, label: fq, depth: 1})
			}
		}
	}
	return matches
}

// CacheSchema stores the tables and columns of a connection so the tree can
// expand and search them without reloading.
func (e *Explorer) CacheSchema(connID int64, idx *placeholder.SchemaIndex) {
	e.mu.Lock()
	e.cacheSchemaLocked(connID, idx)
	e.mu.Unlock()
	e.rebuildVisible()
}

func (e *Explorer) cacheSchemaLocked(connID int64, idx *placeholder.SchemaIndex) []explorerNode {
	tables := idx.Tables()
	tblNodes := make([]explorerNode, len(tables))
	for i, t := range tables {
		tid := TableNodeID(connID, t.Name)
		tblNodes[i] = explorerNode{
			id:       tid,
			label:    t.Name,
			depth:    1,
			isBranch: true,
		}
		colNodes := make([]explorerNode, len(t.Columns))
		for j, col := range t.Columns {
			colNodes[j] = explorerNode{
				id:    ColumnNodeID(connID, t.Name, col),
				label: col,
				depth: 2,
			}
		}
		e.children[tid] = colNodes
	}
	e.children[ConnectionNodeID(connID)] = tblNodes
	return tblNodes
}

// Forget drops the cached schema of a connection.
func (e *Explorer) Forget(connID int64) {
	e.mu.Lock()
	cid := ConnectionNodeID(connID)
	for _, tbl := range e.children[cid] {
		delete(e.children, tbl.id)
	}
	delete(e.children, cid)
	e.mu.Unlock()
	e.rebuildVisible()
}

// SetConnections replaces the connection list, sorted by name.
func (e *Explorer) SetConnections(conns []ConnectionOption) {
	sorted := append([]ConnectionOption(nil), conns...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	e.mu.Lock()
	e.connections = sorted
	found := false
	for _, c := range sorted {
		if c.ID == e.selected {
			found = true
			break
		}
	}
	if !found {
		e.selected = 0
	}
	e.mu.Unlock()
	e.rebuildVisible()
}

// SetRecentConnections sets the names of recently queried connections.
func (e *Explorer) SetRecentConnections(names []string) {
	e.mu.Lock()
	e.recent = names
	e.mu.Unlock()
	e.rebuildVisible()
}

// SelectedConnection returns the last connection clicked, or zero.
func (e *Explorer) SelectedConnection() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

func explorerNodeColor(node explorerNode) color.Color {
	t := fyne.CurrentApp().Settings().Theme()
	v := fyne.CurrentApp().Settings().ThemeVariant()
	if node.isHeader {
		return t.Color(colorExplorerHeader, v)
	}
	switch node.depth {
	case 1:
		return t.Color(colorExplorerTable, v)
	case 2:
		return t.Color(colorExplorerColumn, v)
	default:
		return t.Color(colorExplorerConnection, v)
	}
}

const (
	colorExplorerHeader     fyne.ThemeColorName = "explorerHeader"
	colorExplorerConnection fyne.ThemeColorName = "explorerConnection"
	colorExplorerTable      fyne.ThemeColorName = "explorerTable"
	colorExplorerColumn     fyne.ThemeColorName = "explorerColumn"
)

func (e *Explorer) toggleBranch(id string) {
	e.mu.Lock()

	idx := -1
	for i, n := range e.visible {
		if n.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return
	}

	node := &e.visible[idx]

	if node.expanded {
		node.expanded = false
		removeCount := e.countDescendants(idx)
		if removeCount > 0 {
			e.visible = append(e.visible[:idx+1], e.visible[idx+1+removeCount:]...)
		}
		e.mu.Unlock()
		fyne.Do(func() { e.list.Refresh() })
		return
	}

	if cached, ok := e.children[id]; ok {
		node.expanded = true
		e.insertChildren(idx, cached)
		e.mu.Unlock()
		fyne.Do(func() { e.list.Refresh() })
		return
	}

	// Only connection nodes load lazily; tables come with their columns.
	kind, connID, _, _ := ParseNodeID(id)
	if kind != "c" || e.loading[id] || e.LoadSchema == nil {
		e.mu.Unlock()
		return
	}
	e.loading[id] = true
	e.mu.Unlock()

	go func() {
		e.log.V(1).Info("loading schema", "connection", connID)
		idx, err := e.LoadSchema(connID)

		e.mu.Lock()
		delete(e.loading, id)

		if err != nil {
			e.mu.Unlock()
			e.log.Error(err, "loading schema failed", "connection", connID)
			return
		}
		e.log.V(1).Info("loaded schema", "connection", connID, "tables", idx.Len())

		childNodes := e.cacheSchemaLocked(connID, idx)
		for i := range e.visible {
			if e.visible[i].id == id {
				e.visible[i].expanded = true
				e.insertChildren(i, childNodes)
				break
			}
		}

		e.mu.Unlock()
		fyne.Do(func() { e.list.Refresh() })
	}()
}

// countDescendants returns how many items after idx belong as descendants.
// Must be called with e.mu held.
func (e *Explorer) countDescendants(idx int) int {
	parentDepth := e.visible[idx].depth
	count := 0
	for i := idx + 1; i < len(e.visible); i++ {
		if e.visible[i].isHeader || e.visible[i].depth <= parentDepth {
			break
		}
		count++
	}
	return count
}

// insertChildren inserts childNodes after idx in the visible list.
// Must be called with e.mu held.
func (e *Explorer) insertChildren(idx int, childNodes []explorerNode) {
	if len(childNodes) == 0 {
		return
	}
	tail := make([]explorerNode, len(e.visible[idx+1:]))
	copy(tail, e.visible[idx+1:])
	e.visible = append(e.visible[:idx+1], childNodes...)
	e.visible = append(e.visible, tail...)
}
