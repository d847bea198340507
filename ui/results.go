package ui

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"

	"github.com/farbodahm/sqldash/warehouse"
)

type Results struct {
	table     *widget.Table
	statusBar *widget.Label

	columns []string
	rows    [][]string

	Container fyne.CanvasObject
}

func NewResults() *Results {
	r := &Results{
		statusBar: widget.NewLabel("Ready"),
	}

	r.table = widget.NewTableWithHeaders(
		func() (int, int) {
			if len(r.columns) == 0 {
				return 0, 0
			}
			return len(r.rows), len(r.columns)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.TableCellID, obj fyne.CanvasObject) {
			label := obj.(*widget.Label)
			if id.Row < len(r.rows) && id.Col < len(r.rows[id.Row]) {
				label.SetText(r.rows[id.Row][id.Col])
			}
		},
	)

	r.table.UpdateHeader = func(id widget.TableCellID, template fyne.CanvasObject) {
		label := template.(*widget.Label)
		if id.Row < 0 && id.Col >= 0 && id.Col < len(r.columns) {
			label.SetText(r.columns[id.Col])
		} else if id.Col < 0 && id.Row >= 0 {
			label.SetText(fmt.Sprintf("%d", id.Row+1))
		}
	}

	r.Container = container.NewBorder(nil, r.statusBar, nil, nil, r.table)
	return r
}

func (r *Results) SetData(columns []string, rows [][]string) {
	r.columns = columns
	r.rows = rows
	fyne.Do(func() {
		for i := range columns {
			r.table.SetColumnWidth(i, 150)
		}
		r.table.Refresh()
	})
}

// SetResult shows a query result with its summary in the status bar.
func (r *Results) SetResult(res *warehouse.Result) {
	if res == nil {
		r.Clear()
		return
	}
	r.SetData(res.Columns, res.Rows)
	r.SetStatus(ResultStatus(res))
}

// ResultStatus summarizes a result as "N rows | duration | bytes processed".
func ResultStatus(res *warehouse.Result) string {
	rows := "rows"
	if res.RowCount == 1 {
		rows = "row"
	}
	s := fmt.Sprintf("%s %s | %s", humanize.Comma(res.RowCount), rows, res.Duration.Round(time.Millisecond))
	if res.BytesProcessed > 0 {
		s += fmt.Sprintf(" | %s processed", humanize.Bytes(uint64(res.BytesProcessed)))
	}
	return s
}

func (r *Results) SetStatus(text string) {
	fyne.Do(func() {
		r.statusBar.SetText(text)
	})
}

func (r *Results) Status() string {
	return r.statusBar.Text
}

func (r *Results) Clear() {
	r.columns = nil
	r.rows = nil
	fyne.Do(func() {
		r.table.Refresh()
		r.statusBar.SetText("Ready")
	})
}
