package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"

	"github.com/farbodahm/sqldash/placeholder"
)

// gridMeasurer positions the suggestion popup on the editor's TextGrid.
// Cell metrics come from the current app's monospace text, so it fails
// with placeholder.ErrNoMetrics when no app is running.
type gridMeasurer struct {
	tabWidth int
}

func (m gridMeasurer) cellSize() (fyne.Size, error) {
	if fyne.CurrentApp() == nil {
		return fyne.Size{}, placeholder.ErrNoMetrics
	}
	return fyne.MeasureText("M", theme.TextSize(), fyne.TextStyle{Monospace: true}), nil
}

func (m gridMeasurer) MeasureOffset(text string, offset int) (placeholder.Point, error) {
	cell, err := m.cellSize()
	if err != nil {
		return placeholder.Point{}, err
	}
	g := placeholder.GridMeasurer{
		CellWidth:  cell.Width,
		LineHeight: cell.Height,
		TabWidth:   m.tabWidth,
	}
	return g.MeasureOffset(text, offset)
}
