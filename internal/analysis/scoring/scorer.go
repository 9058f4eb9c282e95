// Package scoring turns a set of pattern matches into a composite 0-100
// signal score.
package scoring

import (
	"sort"
	"time"

	"pivotscan/internal/models"
)

// Combo is an exact set of kinds that earns bonus points when it is the
// complete set of scored detections.
type Combo struct {
	Kinds  []models.PatternKind
	Points int
}

// VolumeBand awards Points when the volume ratio reaches MinRatio.
type VolumeBand struct {
	MinRatio float64
	Points   int
}

// Weights holds the point table used by the scorer.
type Weights struct {
	TierPoints   map[int]int
	Multiplicity map[int]int // distinct scored kinds; 3 means "3 or more"
	Combos       []Combo
	VolumeBands  []VolumeBand // highest MinRatio first
}

// DefaultWeights returns the standard point table.
func DefaultWeights() Weights {
	return Weights{
		TierPoints:   map[int]int{1: 30, 2: 20, 3: 10},
		Multiplicity: map[int]int{1: 0, 2: 15, 3: 25},
		Combos: []Combo{
			{Kinds: []models.PatternKind{models.PatternBreakout, models.PatternCupWithHandle}, Points: 20},
			{Kinds: []models.PatternKind{models.PatternVCP, models.PatternFlatBase}, Points: 15},
		},
		VolumeBands: []VolumeBand{
			{MinRatio: 3.0, Points: 10},
			{MinRatio: 2.0, Points: 7},
			{MinRatio: 1.5, Points: 5},
		},
	}
}

// scoredKinds earn points. Other kinds are reported but contribute nothing.
var scoredKinds = map[models.PatternKind]bool{
	models.PatternCupWithHandle: true,
	models.PatternBreakout:      true,
	models.PatternVCP:           true,
	models.PatternFlatBase:      true,
	models.PatternPocketPivot:   true,
}

// IsScored reports whether kind contributes to the score.
func IsScored(kind models.PatternKind) bool {
	return scoredKinds[kind]
}

// SignalScorer computes signal scores. It holds no mutable state.
type SignalScorer struct {
	weights Weights
}

// NewSignalScorer creates a scorer with the default point table.
func NewSignalScorer() *SignalScorer {
	return NewSignalScorerWithWeights(DefaultWeights())
}

// NewSignalScorerWithWeights creates a scorer with a custom point table.
func NewSignalScorerWithWeights(weights Weights) *SignalScorer {
	return &SignalScorer{weights: weights}
}

// Score computes the composite score for the detected matches. Undetected
// matches are ignored. Without any scored detection the score is zero and
// no other component is applied.
func (s *SignalScorer) Score(instrument string, date time.Time, matches []models.PatternMatch, volumeRatio float64) models.SignalScore {
	result := models.SignalScore{
		Instrument:  instrument,
		Date:        date,
		Matches:     []models.PatternMatch{},
		VolumeRatio: volumeRatio,
	}

	kinds := make(map[models.PatternKind]bool)
	bestTier := 0
	for _, m := range matches {
		if !m.Detected {
			continue
		}
		result.Matches = append(result.Matches, m)
		if !IsScored(m.Kind) {
			continue
		}
		kinds[m.Kind] = true
		if bestTier == 0 || m.Tier < bestTier {
			bestTier = m.Tier
		}
	}
	if len(kinds) == 0 {
		return result
	}

	b := models.ScoreBreakdown{
		TierPoints:         s.weights.TierPoints[bestTier],
		MultiplicityPoints: s.multiplicityPoints(len(kinds)),
		ComboPoints:        s.comboPoints(kinds),
		VolumePoints:       s.volumePoints(volumeRatio),
	}
	result.Breakdown = b
	result.Score = clamp(b.Total(), 0, 100)
	return result
}

func (s *SignalScorer) multiplicityPoints(n int) int {
	best, bestN := 0, 0
	for count, pts := range s.weights.Multiplicity {
		if n >= count && count > bestN {
			best, bestN = pts, count
		}
	}
	return best
}

func (s *SignalScorer) comboPoints(kinds map[models.PatternKind]bool) int {
	for _, c := range s.weights.Combos {
		if len(c.Kinds) != len(kinds) {
			continue
		}
		match := true
		for _, k := range c.Kinds {
			if !kinds[k] {
				match = false
				break
			}
		}
		if match {
			return c.Points
		}
	}
	return 0
}

func (s *SignalScorer) volumePoints(ratio float64) int {
	bands := append([]VolumeBand(nil), s.weights.VolumeBands...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinRatio > bands[j].MinRatio })
	for _, b := range bands {
		if ratio >= b.MinRatio {
			return b.Points
		}
	}
	return 0
}

func clamp(value, minVal, maxVal int) int {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
