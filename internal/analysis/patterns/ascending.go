package patterns

import (
	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// AscendingBase detects a staircase of at least three rising swing lows
// whose pullbacks are moderate and come on shrinking volume.
type AscendingBase struct {
	span        int
	maxBars     int
	radius      int
	minLows     int
	minPullback float64
	maxPullback float64
}

// NewAscendingBase creates an ascending-base detector evaluated over the
// last nine weeks.
func NewAscendingBase() *AscendingBase {
	return &AscendingBase{
		span:        15,
		maxBars:     45,
		radius:      3,
		minLows:     3,
		minPullback: 0.10,
		maxPullback: 0.20,
	}
}

func (d *AscendingBase) Kind() models.PatternKind { return models.PatternAscendingBase }
func (d *AscendingBase) MinLookback() int         { return d.span }
func (d *AscendingBase) Tier() int                { return 2 }

// Detect evaluates the trailing run of rising swing lows in w.
func (d *AscendingBase) Detect(w *series.Window) models.PatternMatch {
	if w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	w = w.Tail(d.maxBars)
	highs := w.Highs()
	lows := w.Lows()
	vols := w.Volumes()

	swings := indicators.SwingLows(lows, d.radius)
	if len(swings) == 0 {
		return reject(d.Kind(), d.Tier(), "too_few_rising_lows", nil)
	}
	start := len(swings) - 1
	for start > 0 && swings[start-1].Price < swings[start].Price {
		start--
	}
	run := swings[start:]
	metrics := map[string]float64{"rising_lows": float64(len(run))}
	if len(run) < d.minLows {
		return reject(d.Kind(), d.Tier(), "too_few_rising_lows", metrics)
	}
	span := run[len(run)-1].Index - run[0].Index
	metrics["span_sessions"] = float64(span)
	if span < d.span {
		return reject(d.Kind(), d.Tier(), "base_too_short", metrics)
	}

	prevLegVol := 0.0
	maxDepth := 0.0
	for k := 1; k < len(run); k++ {
		a, b := run[k-1], run[k]
		between := highs[a.Index+1 : b.Index]
		peakIdx := a.Index + 1 + indicators.HighestIndex(between)
		peak := highs[peakIdx]
		depth := (peak - b.Price) / peak
		if depth > maxDepth {
			maxDepth = depth
		}
		if !within(depth, d.minPullback, d.maxPullback) {
			metrics["pullback_depth"] = depth
			return reject(d.Kind(), d.Tier(), "pullback_depth_out_of_range", metrics)
		}
		legVol := indicators.Mean(vols[peakIdx : b.Index+1])
		if k > 1 && legVol >= prevLegVol {
			return reject(d.Kind(), d.Tier(), "pullback_volume_not_declining", metrics)
		}
		prevLegVol = legVol
	}
	metrics["max_pullback_depth"] = maxDepth

	pivot := indicators.Highest(highs[run[0].Index:])
	return detected(d.Kind(), d.Tier(), map[string]float64{
		"first_low":       run[0].Price,
		"last_low":        run[len(run)-1].Price,
		models.LevelPivot: pivot,
	}, metrics)
}
