package patterns

import (
	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// Breakout detects a close above the prior 20-session closing high on
// heavy volume while above the 50-session average.
type Breakout struct {
	lookback    int
	avgPeriod   int
	volumeRatio float64
}

// NewBreakout creates a breakout detector with default limits.
func NewBreakout() *Breakout {
	return &Breakout{lookback: 20, avgPeriod: 50, volumeRatio: 1.5}
}

func (d *Breakout) Kind() models.PatternKind { return models.PatternBreakout }
func (d *Breakout) MinLookback() int         { return d.avgPeriod }
func (d *Breakout) Tier() int                { return 1 }

// Detect evaluates the last bar of w.
func (d *Breakout) Detect(w *series.Window) models.PatternMatch {
	if w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	closes := w.Closes()
	vols := w.Volumes()
	i := len(closes) - 1

	priorHigh := indicators.Highest(closes[i-d.lookback : i])
	avgVol, _ := indicators.SMA(vols, d.avgPeriod)
	sma, _ := indicators.SMA(closes, d.avgPeriod)
	ratio := 0.0
	if avgVol > 0 {
		ratio = vols[i] / avgVol
	}
	metrics := map[string]float64{
		"prior_high":   priorHigh,
		"volume_ratio": ratio,
		"sma50":        sma,
	}

	if closes[i] <= priorHigh {
		return reject(d.Kind(), d.Tier(), "no_new_high", metrics)
	}
	if vols[i] < d.volumeRatio*avgVol {
		return reject(d.Kind(), d.Tier(), "volume_too_low", metrics)
	}
	if closes[i] <= sma {
		return reject(d.Kind(), d.Tier(), "below_sma50", metrics)
	}

	return detected(d.Kind(), d.Tier(), map[string]float64{
		"prior_high":      priorHigh,
		models.LevelPivot: priorHigh,
	}, metrics)
}
