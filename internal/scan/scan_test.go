package scan

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotscan/internal/analysis/regime"
	"pivotscan/internal/analysis/scoring"
	"pivotscan/internal/metrics"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
	"pivotscan/internal/testutil"
)

const sessions = 260

func growth(n int, start, rate float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * math.Pow(1+rate, float64(i))
	}
	return out
}

func constVols(n int, v int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// breakoutBars rises steadily and ends on a 3x volume session.
func breakoutBars() []models.Bar {
	vols := constVols(sessions, 1000)
	vols[sessions-1] = 3000
	return testutil.FromSeries(growth(sessions, 20, 0.006), vols)
}

// pocketPivotBars chops sideways and ends on an up day that out-trades
// every recent down day.
func pocketPivotBars() []models.Bar {
	closes := make([]float64, sessions)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 99
		}
	}
	closes[sessions-2] = 99
	closes[sessions-1] = 102
	vols := constVols(sessions, 1000)
	vols[sessions-1] = 1500
	return testutil.FromSeries(closes, vols)
}

func newStore(t *testing.T, indexUp bool) *series.Store {
	t.Helper()
	s := series.NewStore()
	idx := growth(sessions, 300, 0.001)
	if !indexUp {
		idx = growth(sessions, 400, -0.001)
	}
	require.NoError(t, s.AppendAll("SPY", testutil.FromCloses(idx, 1_000_000)))
	require.NoError(t, s.AppendAll("BRK", breakoutBars()))
	require.NoError(t, s.AppendAll("PPV", pocketPivotBars()))
	require.NoError(t, s.AppendAll("OLD", testutil.FromCloses(testutil.Flat(100, 50), 1000)))
	late := testutil.FromCloses(testutil.Flat(5, 50), 1000)
	for i := range late {
		late[i].Date = testutil.Day(sessions + i)
	}
	require.NoError(t, s.AppendAll("LATE", late))
	return s
}

func newOrchestrator(s *series.Store, workers int) *Orchestrator {
	cfg := DefaultConfig()
	cfg.Workers = workers
	return NewOrchestrator(s, regime.NewGate(regime.DefaultConfig()), scoring.NewSignalScorer(), cfg)
}

func scanDay() Request {
	return Request{
		Date:     testutil.Day(sessions - 1),
		Universe: []string{"PPV", "BRK", "OLD", "LATE", "NOPE"},
	}
}

func TestScanPartitions(t *testing.T) {
	rec := metrics.NewRecorder()
	o := NewOrchestrator(newStore(t, true), regime.NewGate(regime.DefaultConfig()), scoring.NewSignalScorer(),
		DefaultConfig(), WithMetrics(rec))

	res, err := o.Scan(context.Background(), scanDay())
	require.NoError(t, err)

	assert.Equal(t, regime.StatusTradable, res.Regime.Status)
	require.Len(t, res.Signals, 1)
	brk := res.Signals[0]
	assert.Equal(t, "BRK", brk.Instrument)
	assert.Equal(t, []models.PatternKind{models.PatternBreakout}, brk.Kinds())
	assert.Equal(t, 37, brk.Score)
	assert.InDelta(t, 3000.0/1040.0, brk.VolumeRatio, 1e-9)
	assert.Equal(t, []string{TagSignal}, brk.Tags)
	assert.Greater(t, brk.Pivot, 0.0)

	require.Len(t, res.Watchlist, 1)
	ppv := res.Watchlist[0]
	assert.Equal(t, "PPV", ppv.Instrument)
	assert.Equal(t, 10, ppv.Score)
	assert.Equal(t, []string{TagWatch}, ppv.Tags)

	assert.ElementsMatch(t, []Skipped{
		{Symbol: "OLD", Reason: SkipNoBarOnDate},
		{Symbol: "LATE", Reason: SkipInsufficient},
		{Symbol: "NOPE", Reason: SkipUnknown},
	}, res.Skipped)
}

func TestScanRegimeBlocked(t *testing.T) {
	o := newOrchestrator(newStore(t, false), 2)
	res, err := o.Scan(context.Background(), scanDay())
	require.NoError(t, err)

	assert.Equal(t, regime.StatusBlocked, res.Regime.Status)
	assert.Empty(t, res.Signals)
	require.Len(t, res.Watchlist, 2)
	assert.Equal(t, "BRK", res.Watchlist[0].Instrument)
	assert.Equal(t, []string{TagRegimeBlocked}, res.Watchlist[0].Tags)
	assert.Equal(t, "PPV", res.Watchlist[1].Instrument)
}

func TestScanMissingIndexFailsClosed(t *testing.T) {
	s := series.NewStore()
	require.NoError(t, s.AppendAll("BRK", breakoutBars()))

	res, err := newOrchestrator(s, 1).Scan(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, regime.StatusUnknown, res.Regime.Status)
	assert.Empty(t, res.Signals)
	require.Len(t, res.Watchlist, 1)
	assert.Equal(t, testutil.Day(sessions-1), res.Date)
}

func TestScanIdempotentAcrossWorkers(t *testing.T) {
	s := newStore(t, true)
	req := scanDay()

	first, err := newOrchestrator(s, 1).Scan(context.Background(), req)
	require.NoError(t, err)
	want, err := json.Marshal(first)
	require.NoError(t, err)

	for _, workers := range []int{1, 2, 8} {
		res, err := newOrchestrator(s, workers).Scan(context.Background(), req)
		require.NoError(t, err)
		got, err := json.Marshal(res)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), "workers=%d", workers)
	}
	assert.Equal(t, sessions, s.Len("BRK"))
}

func TestScanDefaultUniverseExcludesIndex(t *testing.T) {
	res, err := newOrchestrator(newStore(t, true), 4).Scan(context.Background(), Request{Date: testutil.Day(sessions - 1)})
	require.NoError(t, err)
	for _, e := range append(res.Signals, res.Watchlist...) {
		assert.NotEqual(t, "SPY", e.Instrument)
	}
	for _, sk := range res.Skipped {
		assert.NotEqual(t, "SPY", sk.Symbol)
	}
}

func TestScanUniverseDuplicatesAndIndex(t *testing.T) {
	req := scanDay()
	req.Universe = []string{"BRK", "SPY", "BRK", " BRK "}
	res, err := newOrchestrator(newStore(t, true), 4).Scan(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Signals, 1)
	assert.Equal(t, "BRK", res.Signals[0].Instrument)
	assert.Empty(t, res.Watchlist)
	assert.Empty(t, res.Skipped)
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newOrchestrator(newStore(t, true), 1).Scan(ctx, scanDay())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatchlistOrdering(t *testing.T) {
	entries := []Entry{
		{SignalScore: models.SignalScore{Instrument: "B", Score: 10}},
		{SignalScore: models.SignalScore{Instrument: "A", Score: 10},
			NearMisses: []models.NearMiss{{Name: "Near VCP", Needs: []string{"vol decline", "3rd tighten"}}}},
		{SignalScore: models.SignalScore{Instrument: "C", Score: 20}},
		{SignalScore: models.SignalScore{Instrument: "D", Score: 10},
			NearMisses: []models.NearMiss{{Name: "VCP", Needs: []string{"already qualifies"}}}},
	}
	sortWatchlist(entries)
	var order []string
	for _, e := range entries {
		order = append(order, e.Instrument)
	}
	assert.Equal(t, []string{"C", "B", "D", "A"}, order)
}
