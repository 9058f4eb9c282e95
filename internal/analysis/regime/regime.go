// Package regime gates new signals on the broad market trend.
package regime

import (
	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/series"
)

// Status is the tradability verdict of the gate.
type Status string

const (
	StatusTradable Status = "TRADABLE"
	StatusBlocked  Status = "BLOCKED"
	StatusUnknown  Status = "UNKNOWN"
)

// Trend is the market-timing label derived from short averages and
// distribution days.
type Trend string

const (
	TrendConfirmedUptrend Trend = "confirmed_uptrend"
	TrendUnderPressure    Trend = "uptrend_under_pressure"
	TrendCorrection       Trend = "correction"
	TrendUnknown          Trend = "unknown"
)

// Config holds configuration for the regime gate.
type Config struct {
	SMAPeriod          int
	FailOpen           bool
	DistributionWindow int
	PressureDays       int
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		SMAPeriod:          200,
		FailOpen:           false,
		DistributionWindow: 25,
		PressureDays:       5,
	}
}

// Info describes the market regime at the last bar of the index window.
type Info struct {
	Status           Status  `json:"status" yaml:"status"`
	Tradable         bool    `json:"tradable" yaml:"tradable"`
	Close            float64 `json:"close" yaml:"close"`
	SMA200           float64 `json:"sma200" yaml:"sma200"`
	DistributionDays int     `json:"distribution_days" yaml:"distribution_days"`
	Trend            Trend   `json:"trend" yaml:"trend"`
}

// Gate evaluates index windows. It holds no mutable state.
type Gate struct {
	config Config
}

// NewGate creates a gate. Zero-valued fields fall back to defaults.
func NewGate(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.SMAPeriod <= 0 {
		cfg.SMAPeriod = def.SMAPeriod
	}
	if cfg.DistributionWindow <= 0 {
		cfg.DistributionWindow = def.DistributionWindow
	}
	if cfg.PressureDays <= 0 {
		cfg.PressureDays = def.PressureDays
	}
	return &Gate{config: cfg}
}

// Lookback returns the number of index bars Evaluate can use.
func (g *Gate) Lookback() int {
	n := g.config.SMAPeriod
	if g.config.DistributionWindow > n {
		n = g.config.DistributionWindow
	}
	if n < 50 {
		n = 50
	}
	return n
}

// IsTradable reports whether the last close is above its long average.
func (g *Gate) IsTradable(w *series.Window) bool {
	return g.Evaluate(w).Tradable
}

// Evaluate judges the regime at the last bar of w. With fewer bars than the
// average period the status is UNKNOWN and the fail-open policy decides.
func (g *Gate) Evaluate(w *series.Window) Info {
	if w == nil || w.Len() == 0 {
		return Info{Status: StatusUnknown, Tradable: g.config.FailOpen, Trend: TrendUnknown}
	}
	closes := w.Closes()
	info := Info{
		Close:            closes[len(closes)-1],
		DistributionDays: g.distributionDays(w),
		Trend:            g.trend(w),
	}

	sma, ok := indicators.SMA(closes, g.config.SMAPeriod)
	if !ok {
		info.Status = StatusUnknown
		info.Tradable = g.config.FailOpen
		return info
	}
	info.SMA200 = sma
	info.Tradable = info.Close > sma
	info.Status = StatusBlocked
	if info.Tradable {
		info.Status = StatusTradable
	}
	return info
}

// distributionDays counts sessions in the trailing window that closed lower
// on higher volume than the session before.
func (g *Gate) distributionDays(w *series.Window) int {
	recent := w.Tail(g.config.DistributionWindow)
	count := 0
	for i := 1; i < recent.Len(); i++ {
		cur, prev := recent.Bar(i), recent.Bar(i-1)
		if cur.Close < prev.Close && cur.Volume > prev.Volume {
			count++
		}
	}
	return count
}

func (g *Gate) trend(w *series.Window) Trend {
	closes := w.Closes()
	ma21, ok21 := indicators.SMA(closes, 21)
	ma50, ok50 := indicators.SMA(closes, 50)
	if !ok21 || !ok50 {
		return TrendUnknown
	}
	last := closes[len(closes)-1]
	if last <= ma21 || ma21 <= ma50 {
		return TrendCorrection
	}
	if g.distributionDays(w) >= g.config.PressureDays {
		return TrendUnderPressure
	}
	return TrendConfirmedUptrend
}
