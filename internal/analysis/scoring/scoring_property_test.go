package scoring

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"pivotscan/internal/analysis/patterns"
	"pivotscan/internal/models"
)

var scoreDate = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

// matchesFromMask builds detected matches for the kinds selected by mask,
// using each detector's tier.
func matchesFromMask(mask int) []models.PatternMatch {
	var out []models.PatternMatch
	for bit, kind := range models.AllPatternKinds {
		d, _ := patterns.ByKind(kind)
		out = append(out, models.PatternMatch{
			Kind:     kind,
			Detected: mask&(1<<bit) != 0,
			Tier:     d.Tier(),
		})
	}
	return out
}

func scoredCount(mask int) int {
	n := 0
	for bit, kind := range models.AllPatternKinds {
		if mask&(1<<bit) != 0 && IsScored(kind) {
			n++
		}
	}
	return n
}

// isExactCombo reports whether mask selects exactly one of the bonus sets.
func isExactCombo(mask int) bool {
	kinds := make(map[models.PatternKind]bool)
	for bit, kind := range models.AllPatternKinds {
		if mask&(1<<bit) != 0 && IsScored(kind) {
			kinds[kind] = true
		}
	}
	return NewSignalScorer().comboPoints(kinds) > 0
}

// Property: scores stay within [0, 100] and are zero without a scored detection.
func TestProperty_ScoreWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	scorer := NewSignalScorer()

	properties.Property("score in [0, 100]", prop.ForAll(
		func(mask int, ratio float64) bool {
			s := scorer.Score("X", scoreDate, matchesFromMask(mask), ratio)
			if s.Score < 0 || s.Score > 100 {
				return false
			}
			if scoredCount(mask) == 0 {
				return s.Score == 0 && s.Breakdown == (models.ScoreBreakdown{})
			}
			return s.Score == s.Breakdown.Total()
		},
		gen.IntRange(0, 127),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}

// Property: adding a detection never lowers the score unless it dissolves an
// exact combo set, and a higher volume ratio never lowers the score.
func TestProperty_ScoreMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	scorer := NewSignalScorer()

	properties.Property("adding a detection never decreases score", prop.ForAll(
		func(mask int, bit int, ratio float64) bool {
			added := mask | (1 << bit)
			if isExactCombo(mask) && added != mask {
				return true
			}
			before := scorer.Score("X", scoreDate, matchesFromMask(mask), ratio).Score
			after := scorer.Score("X", scoreDate, matchesFromMask(added), ratio).Score
			return after >= before
		},
		gen.IntRange(0, 127),
		gen.IntRange(0, 6),
		gen.Float64Range(0, 5),
	))

	properties.Property("higher volume ratio never decreases score", prop.ForAll(
		func(mask int, ratio, extra float64) bool {
			m := matchesFromMask(mask)
			return scorer.Score("X", scoreDate, m, ratio+extra).Score >= scorer.Score("X", scoreDate, m, ratio).Score
		},
		gen.IntRange(0, 127),
		gen.Float64Range(0, 5),
		gen.Float64Range(0, 5),
	))

	properties.Property("scoring is deterministic", prop.ForAll(
		func(mask int, ratio float64) bool {
			a := scorer.Score("X", scoreDate, matchesFromMask(mask), ratio)
			b := scorer.Score("X", scoreDate, matchesFromMask(mask), ratio)
			return a.Score == b.Score && a.Breakdown == b.Breakdown
		},
		gen.IntRange(0, 127),
		gen.Float64Range(0, 5),
	))

	properties.TestingRun(t)
}

func detectedMatch(kind models.PatternKind, tier int) models.PatternMatch {
	return models.PatternMatch{Kind: kind, Detected: true, Tier: tier}
}

func TestScoreCupAndVCP(t *testing.T) {
	s := NewSignalScorer().Score("X", scoreDate, []models.PatternMatch{
		detectedMatch(models.PatternCupWithHandle, 1),
		detectedMatch(models.PatternVCP, 2),
	}, 0.2)

	assert.Equal(t, 45, s.Score)
	assert.Equal(t, models.ScoreBreakdown{TierPoints: 30, MultiplicityPoints: 15}, s.Breakdown)
	assert.Len(t, s.Matches, 2)
}

func TestComboIsExactSet(t *testing.T) {
	scorer := NewSignalScorer()

	pair := scorer.Score("X", scoreDate, []models.PatternMatch{
		detectedMatch(models.PatternBreakout, 1),
		detectedMatch(models.PatternCupWithHandle, 1),
	}, 0)
	assert.Equal(t, 20, pair.Breakdown.ComboPoints)
	assert.Equal(t, 65, pair.Score)

	superset := scorer.Score("X", scoreDate, []models.PatternMatch{
		detectedMatch(models.PatternBreakout, 1),
		detectedMatch(models.PatternCupWithHandle, 1),
		detectedMatch(models.PatternVCP, 2),
	}, 0)
	assert.Equal(t, 0, superset.Breakdown.ComboPoints)
	assert.Equal(t, 55, superset.Score)

	tight := scorer.Score("X", scoreDate, []models.PatternMatch{
		detectedMatch(models.PatternVCP, 2),
		detectedMatch(models.PatternFlatBase, 2),
	}, 2.5)
	assert.Equal(t, models.ScoreBreakdown{TierPoints: 20, MultiplicityPoints: 15, ComboPoints: 15, VolumePoints: 7}, tight.Breakdown)
}

func TestVolumeBands(t *testing.T) {
	scorer := NewSignalScorer()
	match := []models.PatternMatch{detectedMatch(models.PatternPocketPivot, 3)}

	tests := []struct {
		ratio float64
		want  int
	}{
		{0, 10},
		{1.49, 10},
		{1.5, 15},
		{2.0, 17},
		{3.0, 20},
		{9.0, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scorer.Score("X", scoreDate, match, tt.ratio).Score, "ratio %v", tt.ratio)
	}
}

func TestUnscoredKindsAreReportedOnly(t *testing.T) {
	s := NewSignalScorer().Score("X", scoreDate, []models.PatternMatch{
		detectedMatch(models.PatternAscendingBase, 2),
		detectedMatch(models.PatternDoubleBottom, 2),
		{Kind: models.PatternBreakout, Detected: false, Tier: 1},
	}, 5)
	assert.Equal(t, 0, s.Score)
	assert.Len(t, s.Matches, 2)

	s = NewSignalScorer().Score("X", scoreDate, []models.PatternMatch{
		detectedMatch(models.PatternAscendingBase, 2),
		detectedMatch(models.PatternPocketPivot, 3),
	}, 0)
	assert.Equal(t, 10, s.Score)
	assert.Equal(t, 0, s.Breakdown.MultiplicityPoints)
}

func TestClampUpperBound(t *testing.T) {
	w := DefaultWeights()
	w.TierPoints[1] = 90
	s := NewSignalScorerWithWeights(w).Score("X", scoreDate, []models.PatternMatch{
		detectedMatch(models.PatternBreakout, 1),
		detectedMatch(models.PatternCupWithHandle, 1),
	}, 4)
	assert.Equal(t, 100, s.Score)
	assert.Equal(t, 135, s.Breakdown.Total())
}
