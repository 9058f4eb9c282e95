// Package testutil builds deterministic bar series for tests.
package testutil

import (
	"time"

	"pivotscan/internal/models"
)

// Start is the date of the first generated bar.
var Start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// Day returns the session date n days after Start.
func Day(n int) time.Time {
	return Start.AddDate(0, 0, n)
}

// FromCloses builds bars on consecutive days from closes. Each bar opens at
// the prior close, spans 1% either side of its close and trades volume.
func FromCloses(closes []float64, volume int64) []models.Bar {
	vols := make([]int64, len(closes))
	for i := range vols {
		vols[i] = volume
	}
	return FromSeries(closes, vols)
}

// FromSeries builds bars from parallel close and volume slices.
func FromSeries(closes []float64, volumes []int64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high, low := c, c
		if open > high {
			high = open
		}
		if open < low {
			low = open
		}
		bars[i] = models.Bar{
			Date:   Day(i),
			Open:   open,
			High:   high * 1.01,
			Low:    low * 0.99,
			Close:  c,
			Volume: volumes[i],
		}
	}
	return bars
}

// Flat returns n copies of value.
func Flat(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

// Ramp returns n values moving linearly from from to to inclusive.
func Ramp(n int, from, to float64) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = to
		return out
	}
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	out[n-1] = to
	return out
}

// Concat joins float slices.
func Concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
