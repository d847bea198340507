package ui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/farbodahm/sqldash/placeholder"
)

const schemaViewIdle = "Select a connection to view its schema"

type schemaRow struct {
	Table    string
	Column   string
	Position int // 1-based; 0 for a table without columns
}

// Placeholder returns the placeholder text that refers to the row.
func (r schemaRow) Placeholder() string {
	if r.Column == "" {
		return "${" + r.Table + "}"
	}
	return "${" + r.Table + "." + r.Column + "}"
}

// SchemaView lists every column of the active connection's schema.
// Selecting a row passes its placeholder to OnInsert.
type SchemaView struct {
	table    *widget.Table
	titleBar *widget.Label
	rows     []schemaRow

	OnInsert func(text string)

	Container fyne.CanvasObject
}

var schemaColumns = []string{"Table", "Column", "#"}

func NewSchemaView() *SchemaView {
	s := &SchemaView{
		titleBar: widget.NewLabel(schemaViewIdle),
	}

	s.table = widget.NewTableWithHeaders(
		func() (int, int) {
			return len(s.rows), len(schemaColumns)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			label := obj.(*widget.Label)
			if id.Row >= len(s.rows) {
				return
			}
			r := s.rows[id.Row]
			switch id.Col {
			case 0:
				label.SetText(r.Table)
			case 1:
				label.SetText(r.Column)
			case 2:
				if r.Position > 0 {
					label.SetText(fmt.Sprintf("%d", r.Position))
				} else {
					label.SetText("")
				}
			}
		},
	)

	s.table.UpdateHeader = func(id widget.TableCellID, template fyne.CanvasObject) {
		label := template.(*widget.Label)
		if id.Row < 0 && id.Col >= 0 && id.Col < len(schemaColumns) {
			label.SetText(schemaColumns[id.Col])
		} else if id.Col < 0 && id.Row >= 0 {
			label.SetText(fmt.Sprintf("%d", id.Row+1))
		}
	}

	s.table.OnSelected = func(id widget.TableCellID) {
		if id.Row >= 0 && id.Row < len(s.rows) && s.OnInsert != nil {
			s.OnInsert(s.rows[id.Row].Placeholder())
		}
		s.table.UnselectAll()
	}

	s.table.SetColumnWidth(0, 200)
	s.table.SetColumnWidth(1, 200)
	s.table.SetColumnWidth(2, 60)

	s.Container = container.NewBorder(s.titleBar, nil, nil, nil, s.table)
	return s
}

func schemaRows(idx *placeholder.SchemaIndex) []schemaRow {
	var rows []schemaRow
	for _, t := range idx.Tables() {
		if len(t.Columns) == 0 {
			rows = append(rows, schemaRow{Table: t.Name})
			continue
		}
		for i, c := range t.Columns {
			rows = append(rows, schemaRow{Table: t.Name, Column: c, Position: i + 1})
		}
	}
	return rows
}

// SetSchema shows idx under the given connection name.
func (s *SchemaView) SetSchema(connection string, idx *placeholder.SchemaIndex) {
	rows := schemaRows(idx)
	fyne.Do(func() {
		s.titleBar.SetText(fmt.Sprintf("%s: %d tables", connection, idx.Len()))
		s.rows = rows
		s.table.Refresh()
	})
}

func (s *SchemaView) Clear() {
	fyne.Do(func() {
		s.titleBar.SetText(schemaViewIdle)
		s.rows = nil
		s.table.Refresh()
	})
}
