package patterns

import (
	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// FlatBase detects a tight sideways base near the 52-week high with the
// current close in the top of the range.
type FlatBase struct {
	length       int
	minRange     float64
	maxRange     float64
	percentile   float64
	nearHighPct  float64
	yearSessions int
}

// NewFlatBase creates a flat-base detector with default limits.
func NewFlatBase() *FlatBase {
	return &FlatBase{
		length:       40,
		minRange:     0.07,
		maxRange:     0.18,
		percentile:   90,
		nearHighPct:  0.92,
		yearSessions: 252,
	}
}

func (d *FlatBase) Kind() models.PatternKind { return models.PatternFlatBase }
func (d *FlatBase) MinLookback() int         { return d.length }
func (d *FlatBase) Tier() int                { return 2 }

// Detect evaluates the trailing 40 closes of w.
func (d *FlatBase) Detect(w *series.Window) models.PatternMatch {
	if w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	closes := w.Closes()
	i := len(closes) - 1
	base := closes[len(closes)-d.length:]

	baseHigh := indicators.Highest(base)
	baseLow := indicators.Lowest(base)
	rng := indicators.RangePct(baseHigh, baseLow)
	metrics := map[string]float64{"range_pct": rng}
	if !within(rng, d.minRange, d.maxRange) {
		return reject(d.Kind(), d.Tier(), "range_out_of_range", metrics)
	}

	threshold := indicators.Percentile(base, d.percentile)
	metrics["p90_close"] = threshold
	if closes[i] < threshold {
		return reject(d.Kind(), d.Tier(), "not_near_base_high", metrics)
	}

	year := closes
	if len(year) > d.yearSessions {
		year = year[len(year)-d.yearSessions:]
	}
	yearHigh := indicators.Highest(year)
	metrics["pct_of_52w_high"] = baseHigh / yearHigh
	if baseHigh < d.nearHighPct*yearHigh {
		return reject(d.Kind(), d.Tier(), "far_from_52w_high", metrics)
	}

	return detected(d.Kind(), d.Tier(), map[string]float64{
		"base_high":       baseHigh,
		"base_low":        baseLow,
		"high_52w":        yearHigh,
		models.LevelPivot: baseHigh,
	}, metrics)
}
