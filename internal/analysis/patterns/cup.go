package patterns

import (
	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// CupWithHandle detects a rounded base followed by a shallow handle on
// drying volume. Offsets are counted back from the last bar.
type CupWithHandle struct {
	minDepth       float64
	maxDepth       float64
	rightLipRatio  float64
	minHandleDepth float64
	maxHandleDepth float64
}

// NewCupWithHandle creates a cup-with-handle detector with default limits.
func NewCupWithHandle() *CupWithHandle {
	return &CupWithHandle{
		minDepth:       0.12,
		maxDepth:       0.35,
		rightLipRatio:  0.90,
		minHandleDepth: 0.03,
		maxHandleDepth: 0.15,
	}
}

func (d *CupWithHandle) Kind() models.PatternKind { return models.PatternCupWithHandle }
func (d *CupWithHandle) MinLookback() int         { return 81 }
func (d *CupWithHandle) Tier() int                { return 1 }

// Detect evaluates the cup ending at the last bar of w.
func (d *CupWithHandle) Detect(w *series.Window) models.PatternMatch {
	if w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	closes := w.Closes()
	vols := w.Volumes()
	i := len(closes) - 1

	lipIdx := i - 80 + indicators.HighestIndex(closes[i-80:i-49])
	leftLip := closes[lipIdx]
	cupLow := indicators.Lowest(closes[lipIdx+1 : i-15])
	depth := (leftLip - cupLow) / leftLip
	metrics := map[string]float64{"cup_depth": depth}
	if !within(depth, d.minDepth, d.maxDepth) {
		return reject(d.Kind(), d.Tier(), "depth_out_of_range", metrics)
	}

	rightLip := indicators.Highest(closes[i-15 : i-5])
	metrics["right_lip_ratio"] = rightLip / leftLip
	if rightLip < d.rightLipRatio*leftLip {
		return reject(d.Kind(), d.Tier(), "right_lip_too_low", metrics)
	}

	handleHigh := indicators.Highest(closes[i-15 : i-3])
	handleLow := indicators.Lowest(closes[i-10 : i+1])
	handleDepth := (handleHigh - handleLow) / handleHigh
	metrics["handle_depth"] = handleDepth
	if !within(handleDepth, d.minHandleDepth, d.maxHandleDepth) {
		return reject(d.Kind(), d.Tier(), "handle_depth_out_of_range", metrics)
	}

	handleMinVol := indicators.Lowest(vols[i-10 : i+1])
	cupAvgVol := indicators.Mean(vols[lipIdx : i-15])
	metrics["handle_min_volume"] = handleMinVol
	metrics["cup_avg_volume"] = cupAvgVol
	if handleMinVol >= cupAvgVol {
		return reject(d.Kind(), d.Tier(), "no_volume_dry_up", metrics)
	}

	return detected(d.Kind(), d.Tier(), map[string]float64{
		"left_lip":        leftLip,
		"cup_low":         cupLow,
		"right_lip":       rightLip,
		"handle_high":     handleHigh,
		"handle_low":      handleLow,
		models.LevelPivot: handleHigh,
	}, metrics)
}
