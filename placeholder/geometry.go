package placeholder

import (
	"errors"

	"github.com/mattn/go-runewidth"
)

// Point is a pixel position relative to the top-left of the text surface.
type Point struct {
	X, Y float32
}

// Measurer translates a byte offset in text into the pixel position the
// suggestion popup should be anchored at.
type Measurer interface {
	MeasureOffset(text string, offset int) (Point, error)
}

// MeasurerFunc adapts a function to Measurer.
type MeasurerFunc func(text string, offset int) (Point, error)

func (f MeasurerFunc) MeasureOffset(text string, offset int) (Point, error) {
	return f(text, offset)
}

// Origin anchors everything at (0, 0). It is the default for hosts that
// do not render.
var Origin Measurer = MeasurerFunc(func(string, int) (Point, error) { return Point{}, nil })

// ErrNoMetrics is returned by GridMeasurer when it has no cell size.
var ErrNoMetrics = errors.New("measurer has no cell metrics")

const defaultTabWidth = 4

// GridMeasurer lays text out on a monospace grid, wrapping at Columns
// cells when Columns > 0. The returned point is the bottom-left of the
// caret's cell, where a popup below the caret line starts.
type GridMeasurer struct {
	Columns    int
	CellWidth  float32
	LineHeight float32
	TabWidth   int
}

func (g GridMeasurer) MeasureOffset(text string, offset int) (Point, error) {
	if g.CellWidth <= 0 || g.LineHeight <= 0 {
		return Point{}, ErrNoMetrics
	}
	row, col := g.Cell(text, offset)
	return Point{
		X: float32(col) * g.CellWidth,
		Y: float32(row+1) * g.LineHeight,
	}, nil
}

// Cell returns the visual row and column of offset after wrapping. A tab
// that crosses the wrap width carries its overflow onto the next row.
func (g GridMeasurer) Cell(text string, offset int) (row, col int) {
	offset = ClampCaret(text, offset)
	tab := g.TabWidth
	if tab <= 0 {
		tab = defaultTabWidth
	}
	for _, r := range text[:offset] {
		switch r {
		case '\n':
			row++
			col = 0
			continue
		case '\t':
			col += tab - col%tab
			if g.Columns > 0 && col > g.Columns {
				row++
				col -= g.Columns
			}
			continue
		}
		w := runewidth.RuneWidth(r)
		if g.Columns > 0 && col+w > g.Columns {
			row++
			col = 0
		}
		col += w
	}
	return row, col
}
