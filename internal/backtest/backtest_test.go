package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotscan/internal/analysis/regime"
	"pivotscan/internal/analysis/scoring"
	"pivotscan/internal/errors"
	"pivotscan/internal/ledger"
	"pivotscan/internal/models"
	"pivotscan/internal/scan"
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

// spikeBars rises 0.6% a session and triples volume on sessions 220 and 240,
// which makes both of them breakouts scoring 37.
func spikeBars(start float64) []models.Bar {
	vols := make([]int64, sessions)
	for i := range vols {
		vols[i] = 1000
	}
	vols[220] = 3000
	vols[240] = 3000
	return testutil.FromSeries(growth(sessions, start, 0.006), vols)
}

func newEngine(t *testing.T, symbols ...string) (*Engine, map[string][]models.Bar) {
	t.Helper()
	bars := series.NewStore()
	require.NoError(t, bars.AppendAll("SPY", testutil.FromCloses(growth(sessions, 300, 0.001), 1_000_000)))
	out := make(map[string][]models.Bar)
	for i, sym := range symbols {
		b := spikeBars(20 + 20*float64(i))
		require.NoError(t, bars.AppendAll(sym, b))
		out[sym] = b
	}
	orch := scan.NewOrchestrator(bars, regime.NewGate(regime.DefaultConfig()), scoring.NewSignalScorer(), scan.DefaultConfig())
	return NewEngine(bars, orch), out
}

func replay() Config {
	return Config{
		From:        testutil.Day(210),
		To:          testutil.Day(sessions - 1),
		AccountSize: 100000,
		RiskPct:     0.02,
		Ledger:      ledger.DefaultConfig(),
	}
}

func TestRunSingleTrade(t *testing.T) {
	engine, bars := newEngine(t, "BRK")
	res, err := engine.Run(context.Background(), replay())
	require.NoError(t, err)

	assert.Equal(t, 50, res.Sessions)
	assert.Equal(t, 2, res.Signals)
	require.Len(t, res.EquityCurve, 50)

	entry := bars["BRK"][220].Close
	shares := ledger.Quote(100000, 0.02, entry, 0.10).Shares
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, "BRK", trade.Instrument)
	assert.Equal(t, models.PositionClosedTarget, trade.Status)
	assert.Equal(t, testutil.Day(220), trade.EntryDate)
	assert.Equal(t, testutil.Day(249), trade.ExitDate)
	assert.Equal(t, shares, trade.Shares)
	assert.InDelta(t, 20.0, trade.ReturnPct, 1e-9)

	// The second breakout arrives while the first position is still open.
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkippedSignal{Date: testutil.Day(240), Instrument: "BRK", Score: 37, Reason: SkipHeld}, res.Skipped[0])

	assert.Empty(t, res.Open)
	assert.Equal(t, 1, res.Summary.Trades)
	assert.Equal(t, 100.0, res.Summary.WinRate)
	assert.InDelta(t, 100000+entry*0.2*float64(shares), res.FinalEquity, 0.01)
	assert.Equal(t, 0.0, res.MaxDrawdownPct)
	assert.Equal(t, res.FinalEquity, res.EquityCurve[len(res.EquityCurve)-1].Equity)
}

func TestRunMaxOpenPositions(t *testing.T) {
	engine, _ := newEngine(t, "BRK", "CRM")
	cfg := replay()
	cfg.Ledger.MaxOpenPositions = 1

	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Signals)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "BRK", res.Trades[0].Instrument)

	reasons := make([]string, 0, len(res.Skipped))
	for _, sk := range res.Skipped {
		reasons = append(reasons, sk.Instrument+":"+sk.Reason)
	}
	assert.Equal(t, []string{
		"CRM:" + SkipMaxOpen,
		"BRK:" + SkipHeld,
		"CRM:" + SkipMaxOpen,
	}, reasons)
}

func TestRunMinScore(t *testing.T) {
	engine, _ := newEngine(t, "BRK")
	cfg := replay()
	cfg.MinScore = 40

	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Signals)
	assert.Empty(t, res.Trades)
	require.Len(t, res.Skipped, 2)
	for _, sk := range res.Skipped {
		assert.Equal(t, SkipMinScore, sk.Reason)
	}
	assert.Equal(t, 100000.0, res.FinalEquity)
}

func TestRunReportsOpenPositions(t *testing.T) {
	engine, bars := newEngine(t, "BRK")
	cfg := replay()
	cfg.To = testutil.Day(230)

	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	require.Len(t, res.Open, 1)

	open := res.Open[0]
	assert.Equal(t, models.PositionOpen, open.Status)
	assert.Equal(t, bars["BRK"][230].Close, open.MarkPrice)
	assert.InDelta(t, (math.Pow(1.006, 10)-1)*100, open.UnrealizedPct, 1e-3)
	assert.Greater(t, res.FinalEquity, res.InitialEquity)
}

func TestRunValidation(t *testing.T) {
	engine, _ := newEngine(t, "BRK")

	cfg := replay()
	cfg.To = testutil.Day(100)
	_, err := engine.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	cfg = replay()
	cfg.From, cfg.To = testutil.Day(400), testutil.Day(410)
	_, err = engine.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, errors.ErrDataNotFound)
}

func TestRunCancelled(t *testing.T) {
	engine, _ := newEngine(t, "BRK")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx, replay())
	assert.ErrorIs(t, err, context.Canceled)
}
