package patterns

import (
	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// PocketPivot detects an up day whose volume exceeds every down-day volume
// of the preceding ten sessions while closing above the 10-session average.
type PocketPivot struct {
	lookback int
}

// NewPocketPivot creates a pocket-pivot detector.
func NewPocketPivot() *PocketPivot {
	return &PocketPivot{lookback: 10}
}

func (d *PocketPivot) Kind() models.PatternKind { return models.PatternPocketPivot }
func (d *PocketPivot) MinLookback() int         { return d.lookback + 1 }
func (d *PocketPivot) Tier() int                { return 3 }

// Detect evaluates the last bar of w.
func (d *PocketPivot) Detect(w *series.Window) models.PatternMatch {
	if w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	closes := w.Closes()
	vols := w.Volumes()
	i := len(closes) - 1
	last := w.Last()

	if !last.IsUp() {
		return reject(d.Kind(), d.Tier(), "not_up_day", nil)
	}

	downDays := 0
	maxDownVol := 0.0
	for k := i - d.lookback; k < i; k++ {
		if k < 1 {
			continue
		}
		if closes[k] < closes[k-1] {
			downDays++
			if vols[k] > maxDownVol {
				maxDownVol = vols[k]
			}
		}
	}
	metrics := map[string]float64{
		"down_days":       float64(downDays),
		"max_down_volume": maxDownVol,
	}
	if downDays == 0 {
		return reject(d.Kind(), d.Tier(), "no_down_days", metrics)
	}
	if vols[i] <= maxDownVol {
		return reject(d.Kind(), d.Tier(), "volume_too_low", metrics)
	}

	sma, _ := indicators.SMA(closes, d.lookback)
	metrics["sma10"] = sma
	if closes[i] <= sma {
		return reject(d.Kind(), d.Tier(), "below_sma10", metrics)
	}

	return detected(d.Kind(), d.Tier(), map[string]float64{
		models.LevelPivot: last.High,
	}, metrics)
}
