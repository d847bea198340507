package placeholder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridMeasurerCell(t *testing.T) {
	tests := []struct {
		name   string
		g      GridMeasurer
		text   string
		offset int
		row    int
		col    int
	}{
		{name: "start", text: "abc", offset: 0},
		{name: "first line", text: "abc", offset: 2, col: 2},
		{name: "second line", text: "ab\ncd", offset: 5, row: 1, col: 2},
		{name: "tab stop", text: "a\tb", offset: 2, col: 4},
		{name: "custom tab width", g: GridMeasurer{TabWidth: 8}, text: "\t", offset: 1, col: 8},
		{name: "wide runes", text: "表x", offset: len("表x"), col: 3},
		{name: "wrap", g: GridMeasurer{Columns: 4}, text: "abcdef", offset: 6, row: 1, col: 2},
		{name: "wrap exactly at width", g: GridMeasurer{Columns: 3}, text: "abc", offset: 3, col: 3},
		{name: "wide rune does not split", g: GridMeasurer{Columns: 3}, text: "ab表", offset: len("ab表"), row: 1, col: 2},
		{name: "tab overflow carried", g: GridMeasurer{Columns: 10}, text: "123456789\t", offset: 10, row: 1, col: 2},
		{name: "tab ending at width", g: GridMeasurer{Columns: 8}, text: "12345\t", offset: 6, col: 8},
		{name: "offset clamped", text: "ab", offset: 10, col: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, col := tt.g.Cell(tt.text, tt.offset)
			assert.Equal(t, tt.row, row)
			assert.Equal(t, tt.col, col)
		})
	}
}

func TestGridMeasurerMeasureOffset(t *testing.T) {
	g := GridMeasurer{CellWidth: 7.5, LineHeight: 18}
	p, err := g.MeasureOffset("SELECT\n  ${", 11)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 30, Y: 36}, p)
}

func TestGridMeasurerNoMetrics(t *testing.T) {
	_, err := GridMeasurer{}.MeasureOffset("x", 1)
	assert.ErrorIs(t, err, ErrNoMetrics)
}

func TestOrigin(t *testing.T) {
	p, err := Origin.MeasureOffset("anything", 3)
	require.NoError(t, err)
	assert.Equal(t, Point{}, p)
}

func TestScrollIntoView(t *testing.T) {
	tests := []struct {
		name                     string
		top, height, item, itemH float32
		want                     float32
	}{
		{name: "visible", top: 0, height: 100, item: 40, itemH: 20, want: 0},
		{name: "below", top: 0, height: 100, item: 100, itemH: 20, want: 20},
		{name: "above", top: 60, height: 100, item: 20, itemH: 20, want: 20},
		{name: "partially below", top: 0, height: 100, item: 90, itemH: 20, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScrollIntoView(tt.top, tt.height, tt.item, tt.itemH))
		})
	}
}

func TestWindowScrollTo(t *testing.T) {
	w := &Window{Visible: 3}
	w.ScrollTo(2)
	assert.Equal(t, 0, w.First)
	w.ScrollTo(4)
	assert.Equal(t, 2, w.First)
	w.ScrollTo(3)
	assert.Equal(t, 2, w.First)
	w.ScrollTo(0)
	assert.Equal(t, 0, w.First)

	w.ScrollTo(9)
	w.Reset()
	assert.Equal(t, 0, w.First)

	var none Window
	none.ScrollTo(5)
	assert.Equal(t, 0, none.First)
}
