package placeholder

// Scroller is handed to the Editor by the rendering layer so it can bring
// the highlighted suggestion into view.
type Scroller interface {
	ScrollTo(index int)
}

// ScrollIntoView returns the new top of a viewport so the item
// [itemTop, itemTop+itemHeight) is fully visible. The viewport only moves
// when the item is outside it.
func ScrollIntoView(viewTop, viewHeight, itemTop, itemHeight float32) float32 {
	switch {
	case itemTop+itemHeight > viewTop+viewHeight:
		return itemTop + itemHeight - viewHeight
	case itemTop < viewTop:
		return itemTop
	}
	return viewTop
}

// Window is a Scroller over a list rendered Visible rows at a time. First
// is the index of the top visible row.
type Window struct {
	Visible int
	First   int
}

func (w *Window) ScrollTo(index int) {
	if w.Visible <= 0 || index < 0 {
		return
	}
	w.First = int(ScrollIntoView(float32(w.First), float32(w.Visible), float32(index), 1))
}

// Reset scrolls back to the top.
func (w *Window) Reset() { w.First = 0 }
