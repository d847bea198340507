package ui

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"
)

type ReportEntry struct {
	ID           int64
	Name         string
	SQL          string
	ConnectionID int64
	Connection   string
	UpdatedAt    time.Time
}

type OnReportSelectFunc func(entry ReportEntry)
type OnReportDeleteFunc func(id int64)

type Reports struct {
	list    *widget.List
	entries []ReportEntry

	OnSelect  OnReportSelectFunc
	OnDelete  OnReportDeleteFunc
	OnRefresh func()

	Container fyne.CanvasObject
}

func NewReports() *Reports {
	r := &Reports{}

	refreshBtn := widget.NewButton("Refresh", func() {
		if r.OnRefresh != nil {
			r.OnRefresh()
		}
	})
	toolbar := container.NewHBox(refreshBtn)

	r.list = widget.NewList(
		func() int { return len(r.entries) },
		func() fyne.CanvasObject {
			del := widget.NewButtonWithIcon("", theme.DeleteIcon(), nil)
			del.Importance = widget.LowImportance
			return container.NewBorder(nil, nil, nil, del, widget.NewLabel(""))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id >= len(r.entries) {
				return
			}
			row := obj.(*fyne.Container)
			label := row.Objects[0].(*widget.Label)
			del := row.Objects[1].(*widget.Button)
			e := r.entries[id]
			label.SetText(reportLabel(e, time.Now()))
			del.OnTapped = func() {
				if r.OnDelete != nil {
					r.OnDelete(e.ID)
				}
			}
		},
	)

	r.list.OnSelected = func(id widget.ListItemID) {
		if id < len(r.entries) && r.OnSelect != nil {
			r.OnSelect(r.entries[id])
		}
		r.list.UnselectAll()
	}

	r.Container = container.NewBorder(toolbar, nil, nil, nil, r.list)
	return r
}

func reportLabel(e ReportEntry, now time.Time) string {
	s := e.Name
	if e.Connection != "" {
		s += " [" + e.Connection + "]"
	}
	s += ": " + truncate(e.SQL, 60)
	if !e.UpdatedAt.IsZero() {
		s += fmt.Sprintf(" (%s)", humanize.RelTime(e.UpdatedAt, now, "ago", "from now"))
	}
	return s
}

func (r *Reports) SetEntries(entries []ReportEntry) {
	fyne.Do(func() {
		r.entries = entries
		r.list.Refresh()
	})
}

func (r *Reports) Entries() []ReportEntry {
	return r.entries
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
