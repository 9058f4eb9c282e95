package patterns

import (
	"math"

	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// Reason codes reported by the double-bottom detector.
const (
	ReasonSecondTroughUndercut = "second_trough_undercut"
)

// DoubleBottom detects a W: the most recent swing low paired with the
// lowest low at least seven weeks earlier, separated by a meaningful peak.
type DoubleBottom struct {
	separation  int
	maxBars     int
	radius      int
	minPeakRise float64
	undercut    float64
}

// NewDoubleBottom creates a double-bottom detector evaluated over the
// last six months.
func NewDoubleBottom() *DoubleBottom {
	return &DoubleBottom{
		separation:  35,
		maxBars:     126,
		radius:      3,
		minPeakRise: 0.10,
		undercut:    0.95,
	}
}

func (d *DoubleBottom) Kind() models.PatternKind { return models.PatternDoubleBottom }
func (d *DoubleBottom) MinLookback() int         { return d.separation }
func (d *DoubleBottom) Tier() int                { return 2 }

// Detect evaluates the most recent swing low in w as the second trough.
func (d *DoubleBottom) Detect(w *series.Window) models.PatternMatch {
	if w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	w = w.Tail(d.maxBars)
	highs := w.Highs()
	lows := w.Lows()

	swings := indicators.SwingLows(lows, d.radius)
	if len(swings) == 0 {
		return reject(d.Kind(), d.Tier(), "no_swing_low", nil)
	}
	second := swings[len(swings)-1]
	lastFirst := second.Index - d.separation
	if lastFirst < 0 {
		return reject(d.Kind(), d.Tier(), "insufficient_separation", nil)
	}
	firstIdx := indicators.LowestIndex(lows[:lastFirst+1])
	first := lows[firstIdx]

	metrics := map[string]float64{
		"separation_sessions": float64(second.Index - firstIdx),
		"trough_ratio":        second.Price / first,
	}
	if second.Price < d.undercut*first {
		return reject(d.Kind(), d.Tier(), ReasonSecondTroughUndercut, metrics)
	}

	peak := indicators.Highest(highs[firstIdx+1 : second.Index])
	higher := math.Max(first, second.Price)
	metrics["peak_rise"] = (peak - higher) / higher
	if peak < (1+d.minPeakRise)*higher {
		return reject(d.Kind(), d.Tier(), "middle_peak_too_shallow", metrics)
	}

	return detected(d.Kind(), d.Tier(), map[string]float64{
		"first_trough":    first,
		"second_trough":   second.Price,
		"middle_peak":     peak,
		models.LevelPivot: peak,
	}, metrics)
}
