// Package patterns provides the base-pattern detectors. Each detector judges
// a single window and reports a PatternMatch; a failed criterion is reported
// as a reason code rather than an error.
package patterns

import (
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// Reason codes shared by several detectors.
const (
	ReasonDetectorPanic = "detector_error"
)

// Detector judges one pattern kind over a window.
type Detector interface {
	Kind() models.PatternKind
	MinLookback() int
	Tier() int
	Detect(w *series.Window) models.PatternMatch
}

// All returns one detector per kind in models.AllPatternKinds order.
func All() []Detector {
	return []Detector{
		NewCupWithHandle(),
		NewBreakout(),
		NewVCP(),
		NewFlatBase(),
		NewPocketPivot(),
		NewAscendingBase(),
		NewDoubleBottom(),
	}
}

// ByKind returns the default detector for kind.
func ByKind(kind models.PatternKind) (Detector, bool) {
	for _, d := range All() {
		if d.Kind() == kind {
			return d, true
		}
	}
	return nil, false
}

// Run evaluates d over w. Windows shorter than the minimum lookback are
// rejected with ReasonInsufficientData, and a panicking detector degrades
// to an undetected match.
func Run(d Detector, w *series.Window) (m models.PatternMatch) {
	if w == nil || w.Len() < d.MinLookback() {
		return reject(d.Kind(), d.Tier(), models.ReasonInsufficientData, nil)
	}
	defer func() {
		if recover() != nil {
			m = reject(d.Kind(), d.Tier(), ReasonDetectorPanic, nil)
		}
	}()
	return d.Detect(w)
}

// DetectAll runs every detector over w and returns all matches, detected
// or not, in detector order.
func DetectAll(detectors []Detector, w *series.Window) []models.PatternMatch {
	out := make([]models.PatternMatch, 0, len(detectors))
	for _, d := range detectors {
		out = append(out, Run(d, w))
	}
	return out
}

// Detected filters matches down to the detected ones.
func Detected(matches []models.PatternMatch) []models.PatternMatch {
	var out []models.PatternMatch
	for _, m := range matches {
		if m.Detected {
			out = append(out, m)
		}
	}
	return out
}

func reject(kind models.PatternKind, tier int, reason string, metrics map[string]float64) models.PatternMatch {
	return models.PatternMatch{
		Kind:    kind,
		Reason:  reason,
		Metrics: metrics,
		Tier:    tier,
	}
}

func detected(kind models.PatternKind, tier int, levels, metrics map[string]float64) models.PatternMatch {
	return models.PatternMatch{
		Kind:      kind,
		Detected:  true,
		KeyLevels: levels,
		Metrics:   metrics,
		Tier:      tier,
	}
}

// within reports whether v lies in [lo, hi].
func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
