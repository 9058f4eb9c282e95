package patterns

import (
	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// VCP detects a volatility contraction: three consecutive periods whose
// high-low ranges each shrink to at most contraction times the prior one,
// with volume falling into the last period.
type VCP struct {
	contraction float64
}

// NewVCP creates a VCP detector with the default contraction ratio.
func NewVCP() *VCP {
	return &VCP{contraction: 0.8}
}

func (d *VCP) Kind() models.PatternKind { return models.PatternVCP }
func (d *VCP) MinLookback() int         { return 61 }
func (d *VCP) Tier() int                { return 2 }

// Detect evaluates periods [i-60,i-30), [i-30,i-10) and [i-10,i].
func (d *VCP) Detect(w *series.Window) models.PatternMatch {
	if w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	highs := w.Highs()
	lows := w.Lows()
	vols := w.Volumes()
	i := len(highs) - 1

	r1 := periodRange(highs[i-60:i-30], lows[i-60:i-30])
	r2 := periodRange(highs[i-30:i-10], lows[i-30:i-10])
	r3 := periodRange(highs[i-10:i+1], lows[i-10:i+1])
	metrics := map[string]float64{
		"range_p1":              r1,
		"range_p2":              r2,
		"range_p3":              r3,
		"contraction_ratio_2_1": ratioOrZero(r2, r1),
		"contraction_ratio_3_2": ratioOrZero(r3, r2),
	}

	if r1 <= 0 {
		return reject(d.Kind(), d.Tier(), "no_base_range", metrics)
	}
	if r2 > d.contraction*r1 {
		return reject(d.Kind(), d.Tier(), "no_second_contraction", metrics)
	}
	if r3 > d.contraction*r2 {
		return reject(d.Kind(), d.Tier(), "no_third_contraction", metrics)
	}
	if indicators.Mean(vols[i-10:i+1]) >= indicators.Mean(vols[i-30:i-10]) {
		return reject(d.Kind(), d.Tier(), "no_volume_contraction", metrics)
	}

	pivot := indicators.Highest(highs[i-10 : i+1])
	return detected(d.Kind(), d.Tier(), map[string]float64{
		"final_high":      pivot,
		"final_low":       indicators.Lowest(lows[i-10 : i+1]),
		models.LevelPivot: pivot,
	}, metrics)
}

func periodRange(highs, lows []float64) float64 {
	return indicators.RangePct(indicators.Highest(highs), indicators.Lowest(lows))
}

func ratioOrZero(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
