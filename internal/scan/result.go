package scan

import (
	"sort"
	"time"

	"pivotscan/internal/analysis/patterns"
	"pivotscan/internal/analysis/regime"
	"pivotscan/internal/models"
)

// Entry tags.
const (
	TagSignal        = "signal"
	TagWatch         = "watch"
	TagRegimeBlocked = "regime-blocked"
	TagNearMiss      = "near-miss"
)

// Entry is one ranked instrument in a scan result.
type Entry struct {
	models.SignalScore `yaml:",inline"`
	Close              float64           `json:"close" yaml:"close"`
	Pivot              float64           `json:"pivot,omitempty" yaml:"pivot,omitempty"`
	Tags               []string          `json:"tags" yaml:"tags"`
	NearMisses         []models.NearMiss `json:"near_misses,omitempty" yaml:"near_misses,omitempty"`
}

// Needs returns the total number of outstanding near-miss requirements.
func (e Entry) Needs() int {
	n := 0
	for _, nm := range e.NearMisses {
		for _, need := range nm.Needs {
			if need != patterns.NeedQualifies {
				n++
			}
		}
	}
	return n
}

// Skipped records an instrument that could not be evaluated.
type Skipped struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Reason string `json:"reason" yaml:"reason"`
}

// Result is the immutable output of one scan.
type Result struct {
	Date      time.Time   `json:"date" yaml:"date"`
	Regime    regime.Info `json:"regime" yaml:"regime"`
	Signals   []Entry     `json:"signals" yaml:"signals"`
	Watchlist []Entry     `json:"watchlist" yaml:"watchlist"`
	Skipped   []Skipped   `json:"skipped" yaml:"skipped"`
}

func sortSignals(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Instrument < entries[j].Instrument
	})
}

func sortWatchlist(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if ni, nj := entries[i].Needs(), entries[j].Needs(); ni != nj {
			return ni < nj
		}
		return entries[i].Instrument < entries[j].Instrument
	})
}
