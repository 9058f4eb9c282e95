package models

import "time"

// ScoreBreakdown itemizes the additive components of a signal score.
type ScoreBreakdown struct {
	TierPoints         int `json:"tier_points" yaml:"tier_points"`
	MultiplicityPoints int `json:"multiplicity_points" yaml:"multiplicity_points"`
	ComboPoints        int `json:"combo_points" yaml:"combo_points"`
	VolumePoints       int `json:"volume_points" yaml:"volume_points"`
}

// Total returns the unclamped sum of all components.
func (b ScoreBreakdown) Total() int {
	return b.TierPoints + b.MultiplicityPoints + b.ComboPoints + b.VolumePoints
}

// SignalScore is the composite 0-100 score for one instrument on one date.
type SignalScore struct {
	Instrument  string         `json:"instrument" yaml:"instrument"`
	Date        time.Time      `json:"date" yaml:"date"`
	Score       int            `json:"score" yaml:"score"`
	Matches     []PatternMatch `json:"matches" yaml:"matches"`
	Breakdown   ScoreBreakdown `json:"breakdown" yaml:"breakdown"`
	VolumeRatio float64        `json:"volume_ratio" yaml:"volume_ratio"`
}

// Kinds returns the kinds of all contributing matches.
func (s SignalScore) Kinds() []PatternKind {
	kinds := make([]PatternKind, 0, len(s.Matches))
	for _, m := range s.Matches {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}
