package patterns

import (
	"fmt"

	"pivotscan/internal/analysis/indicators"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// Near-miss names.
const (
	NearFlatBase  = "Near Flat Base"
	NearVCP       = "Near VCP"
	NearBreakout  = "Near Breakout"
	NearMomentum  = "Momentum"
	NeedQualifies = "already qualifies"
)

const (
	nearMinBars      = 200
	nearMaxFromHigh  = 0.15
	nearBreakoutDist = 0.05
	momentumFromHigh = 0.08
	momentumGain3M   = 0.08
)

// NearMisses reports patterns the last bar of w is close to completing.
// Only instruments within 15% of their 52-week closing high and above their
// 50- or 200-session average are considered.
func NearMisses(w *series.Window) []models.NearMiss {
	if w == nil || w.Len() < nearMinBars {
		return nil
	}
	closes := w.Closes()
	highs := w.Highs()
	lows := w.Lows()
	vols := w.Volumes()
	i := len(closes) - 1
	c := closes[i]

	ma50, _ := indicators.SMA(closes, 50)
	ma200, _ := indicators.SMA(closes, 200)
	avgVol50, _ := indicators.SMA(vols, 50)
	volRatio := 0.0
	if avgVol50 > 0 {
		volRatio = vols[i] / avgVol50
	}
	year := closes
	if len(year) > 252 {
		year = year[len(year)-252:]
	}
	high52 := indicators.Highest(year)
	fromHigh := (high52 - c) / high52
	if fromHigh > nearMaxFromHigh || (c < ma50 && c < ma200) {
		return nil
	}

	var out []models.NearMiss
	flatQualifies := false
	vcpQualifies := false

	// Flat base: 40-session range, position in range, proximity to the high.
	base := closes[len(closes)-40:]
	bh, bl := indicators.Highest(base), indicators.Lowest(base)
	rng := indicators.RangePct(bh, bl)
	pos := 0.0
	if bh > bl {
		pos = (c - bl) / (bh - bl)
	}
	nearHigh := bh / high52
	if within(rng, 0.05, 0.25) && nearHigh >= 0.85 {
		var needs []string
		if rng > 0.18 {
			needs = append(needs, fmt.Sprintf("range tighten (%.0f%%→<18%%)", rng*100))
		}
		if rng < 0.07 {
			needs = append(needs, fmt.Sprintf("range widen (%.0f%%→>7%%)", rng*100))
		}
		if pos < 0.90 {
			needs = append(needs, fmt.Sprintf("price to top (%.0f%%→>90%%)", pos*100))
		}
		if nearHigh < 0.92 {
			needs = append(needs, fmt.Sprintf("closer to high (%.0f%%→>92%%)", nearHigh*100))
		}
		name := NearFlatBase
		if len(needs) == 0 {
			needs = []string{NeedQualifies}
			name = models.PatternFlatBase.DisplayName()
			flatQualifies = true
		}
		out = append(out, models.NearMiss{
			Name:     name,
			Needs:    needs,
			Progress: fmt.Sprintf("%.0f%% range, %.0f%% pos, %.0f%% of high", rng*100, pos*100, nearHigh*100),
		})
	}

	// VCP: the first contraction exists, the rest may still be forming.
	r1 := periodRange(highs[i-60:i-30], lows[i-60:i-30])
	r2 := periodRange(highs[i-30:i-10], lows[i-30:i-10])
	r3 := periodRange(highs[i-10:i+1], lows[i-10:i+1])
	if r1 > 0.05 && r2 < r1 {
		var needs []string
		if r2 > 0.8*r1 {
			needs = append(needs, fmt.Sprintf("2nd tighten (%.0f%%→<%.0f%%)", r2*100, r1*80))
		}
		if r3 > 0.8*r2 {
			needs = append(needs, fmt.Sprintf("3rd tighten (%.0f%%→<%.0f%%)", r3*100, r2*80))
		}
		if indicators.Mean(vols[i-10:i+1]) >= indicators.Mean(vols[i-30:i-10]) {
			needs = append(needs, "vol decline")
		}
		name := NearVCP
		if len(needs) == 0 {
			needs = []string{NeedQualifies}
			name = models.PatternVCP.DisplayName()
			vcpQualifies = true
		}
		out = append(out, models.NearMiss{
			Name:     name,
			Needs:    needs,
			Progress: fmt.Sprintf("%.0f%%→%.0f%%→%.0f%%", r1*100, r2*100, r3*100),
		})
	}

	// Breakout: within 5% below the prior 20-session closing high.
	priorHigh := indicators.Highest(closes[i-20 : i])
	if c > ma50 {
		dist := (priorHigh - c) / c
		if dist > 0 && dist <= nearBreakoutDist {
			needs := []string{fmt.Sprintf("$%.2f (%.1f%% away)", priorHigh, dist*100)}
			if volRatio < 1.5 {
				needs = append(needs, fmt.Sprintf("vol (%.1fx→>1.5x)", volRatio))
			}
			out = append(out, models.NearMiss{
				Name:     NearBreakout,
				Needs:    needs,
				Progress: fmt.Sprintf("$%.2f vs 20d high $%.2f", c, priorHigh),
			})
		}
	}

	// Momentum: strength worth watching even without a pattern.
	gain3m := 0.0
	if i >= 63 {
		gain3m = c/closes[i-63] - 1
	}
	if fromHigh <= momentumFromHigh && c > ma50 && c > ma200 && gain3m > momentumGain3M && !flatQualifies && !vcpQualifies {
		out = append(out, models.NearMiss{
			Name:     NearMomentum,
			Needs:    []string{"pattern to form"},
			Progress: fmt.Sprintf("%.1f%% from high, +%.0f%% 3M", fromHigh*100, gain3m*100),
		})
	}

	return out
}
