package models

// PatternKind identifies one of the supported base patterns.
type PatternKind string

const (
	PatternCupWithHandle PatternKind = "cup_with_handle"
	PatternBreakout      PatternKind = "breakout"
	PatternVCP           PatternKind = "vcp"
	PatternFlatBase      PatternKind = "flat_base"
	PatternPocketPivot   PatternKind = "pocket_pivot"
	PatternAscendingBase PatternKind = "ascending_base"
	PatternDoubleBottom  PatternKind = "double_bottom"
)

// AllPatternKinds lists every kind in detection order.
var AllPatternKinds = []PatternKind{
	PatternCupWithHandle,
	PatternBreakout,
	PatternVCP,
	PatternFlatBase,
	PatternPocketPivot,
	PatternAscendingBase,
	PatternDoubleBottom,
}

// DisplayName returns a human-readable pattern name.
func (k PatternKind) DisplayName() string {
	switch k {
	case PatternCupWithHandle:
		return "Cup w/ Handle"
	case PatternBreakout:
		return "Breakout"
	case PatternVCP:
		return "VCP"
	case PatternFlatBase:
		return "Flat Base"
	case PatternPocketPivot:
		return "Pocket Pivot"
	case PatternAscendingBase:
		return "Ascending Base"
	case PatternDoubleBottom:
		return "Double Bottom"
	default:
		return string(k)
	}
}

// Valid reports whether k is a known kind.
func (k PatternKind) Valid() bool {
	for _, known := range AllPatternKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Well-known reason codes attached to undetected matches.
const (
	ReasonInsufficientData = "insufficient_data"
)

// Well-known key level names.
const (
	LevelPivot = "pivot"
)

// PatternMatch is the outcome of one detector over one window.
type PatternMatch struct {
	Kind      PatternKind        `json:"kind" yaml:"kind"`
	Detected  bool               `json:"detected" yaml:"detected"`
	Reason    string             `json:"reason,omitempty" yaml:"reason,omitempty"`
	KeyLevels map[string]float64 `json:"key_levels,omitempty" yaml:"key_levels,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tier      int                `json:"tier" yaml:"tier"`
}

// Pivot returns the buy point of a detected match, or zero.
func (m PatternMatch) Pivot() float64 {
	return m.KeyLevels[LevelPivot]
}

// NearMiss describes a pattern that is close to qualifying.
type NearMiss struct {
	Name     string   `json:"name" yaml:"name"`
	Needs    []string `json:"needs" yaml:"needs"`
	Progress string   `json:"progress" yaml:"progress"`
}
