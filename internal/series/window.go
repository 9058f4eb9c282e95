package series

import (
	"time"

	"pivotscan/internal/models"
)

// Window is a read-only view over consecutive bars of one instrument,
// ending at an evaluation date. Index 0 is the oldest bar.
type Window struct {
	symbol string
	bars   []models.Bar
}

// NewWindow builds a window over bars. The slice is not copied and must
// not be modified afterwards.
func NewWindow(symbol string, bars []models.Bar) *Window {
	return &Window{symbol: symbol, bars: bars[:len(bars):len(bars)]}
}

// Symbol returns the instrument symbol.
func (w *Window) Symbol() string { return w.symbol }

// Len returns the number of bars in the window.
func (w *Window) Len() int { return len(w.bars) }

// Bar returns the bar at index i.
func (w *Window) Bar(i int) models.Bar { return w.bars[i] }

// Last returns the most recent bar. The window must not be empty.
func (w *Window) Last() models.Bar { return w.bars[len(w.bars)-1] }

// EndDate returns the date of the most recent bar.
func (w *Window) EndDate() time.Time {
	if len(w.bars) == 0 {
		return time.Time{}
	}
	return w.Last().Date
}

// Tail returns a window over the last n bars. n larger than Len returns
// the whole window.
func (w *Window) Tail(n int) *Window {
	if n >= len(w.bars) {
		return w
	}
	if n < 0 {
		n = 0
	}
	return &Window{symbol: w.symbol, bars: w.bars[len(w.bars)-n:]}
}

// Bars returns a copy of the underlying bars.
func (w *Window) Bars() []models.Bar {
	out := make([]models.Bar, len(w.bars))
	copy(out, w.bars)
	return out
}

// Opens returns a copy of the open prices.
func (w *Window) Opens() []float64 {
	return w.column(func(b models.Bar) float64 { return b.Open })
}

// Highs returns a copy of the high prices.
func (w *Window) Highs() []float64 {
	return w.column(func(b models.Bar) float64 { return b.High })
}

// Lows returns a copy of the low prices.
func (w *Window) Lows() []float64 {
	return w.column(func(b models.Bar) float64 { return b.Low })
}

// Closes returns a copy of the close prices.
func (w *Window) Closes() []float64 {
	return w.column(func(b models.Bar) float64 { return b.Close })
}

// Volumes returns a copy of the volumes as floats.
func (w *Window) Volumes() []float64 {
	return w.column(func(b models.Bar) float64 { return float64(b.Volume) })
}

func (w *Window) column(f func(models.Bar) float64) []float64 {
	out := make([]float64, len(w.bars))
	for i, b := range w.bars {
		out[i] = f(b)
	}
	return out
}
