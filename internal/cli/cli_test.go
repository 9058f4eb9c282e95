package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotscan/internal/analysis/regime"
	"pivotscan/internal/backtest"
	"pivotscan/internal/errors"
	"pivotscan/internal/ledger"
	"pivotscan/internal/models"
	"pivotscan/internal/report"
	"pivotscan/internal/scan"
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

func breakoutBars() []models.Bar {
	vols := make([]int64, sessions)
	for i := range vols {
		vols[i] = 1000
	}
	vols[sessions-1] = 3000
	return testutil.FromSeries(growth(sessions, 20, 0.006), vols)
}

func writeCSV(t *testing.T, path string, bars []models.Bar) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("Date,Open,High,Low,Close,Volume\n")
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		fmt.Fprintf(&buf, "%s,%s,%s,%s,%s,%d\n",
			b.Date.Format(models.DateLayout), f(b.Open), f(b.High), f(b.Low), f(b.Close), b.Volume)
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// workspace returns a config directory with SPY and BRK csv files under
// data/.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(data, 0755))
	writeCSV(t, filepath.Join(data, "SPY.csv"), testutil.FromCloses(growth(sessions, 300, 0.001), 1_000_000))
	writeCSV(t, filepath.Join(data, "BRK.csv"), breakoutBars())
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd, app := newRootCmd()
	defer app.close()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--config", dir))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func runJSON(t *testing.T, dir string, target interface{}, args ...string) {
	t.Helper()
	out, err := run(t, dir, append(args, "--json")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), target), out)
}

func importData(t *testing.T, dir string) {
	t.Helper()
	var results []importResult
	runJSON(t, dir, &results, "import", "--dir", filepath.Join(dir, "data"))
	require.Len(t, results, 2)
}

func TestVersion(t *testing.T) {
	dir := t.TempDir()
	var v map[string]string
	runJSON(t, dir, &v, "version")
	assert.Equal(t, Version, v["version"])

	out, err := run(t, dir, "version", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "version: "+Version)
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()

	var path map[string]string
	runJSON(t, dir, &path, "config", "path")
	assert.Equal(t, filepath.Join(dir, "config.toml"), path["path"])
	assert.FileExists(t, path["path"])

	var valid map[string]bool
	runJSON(t, dir, &valid, "config", "validate")
	assert.True(t, valid["valid"])

	out, err := run(t, dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Signal threshold: 30")
}

func TestImport(t *testing.T) {
	dir := workspace(t)

	var results []importResult
	runJSON(t, dir, &results, "import", "--dir", filepath.Join(dir, "data"))
	require.Len(t, results, 2)
	assert.Equal(t, importResult{Symbol: "BRK", Read: sessions, Appended: sessions, Last: "2024-09-17"}, results[0])
	assert.Equal(t, "SPY", results[1].Symbol)

	_, err := run(t, dir, "import", "BRK", filepath.Join(dir, "data", "BRK.csv"))
	assert.ErrorIs(t, err, errors.ErrOutOfOrderBar)

	results = nil
	runJSON(t, dir, &results, "import", "BRK", filepath.Join(dir, "data", "BRK.csv"), "--new-only")
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Appended)

	var bars []models.Bar
	runJSON(t, dir, &bars, "bars", "brk", "--tail", "3")
	require.Len(t, bars, 3)
	assert.Equal(t, testutil.Day(sessions-1), bars[2].Date)
	assert.Equal(t, int64(3000), bars[2].Volume)
}

func TestScan(t *testing.T) {
	dir := workspace(t)
	importData(t, dir)

	var res scan.Result
	runJSON(t, dir, &res, "scan", "--date", testutil.Day(sessions-1).Format(models.DateLayout))
	assert.Equal(t, regime.StatusTradable, res.Regime.Status)
	require.Len(t, res.Signals, 1)
	assert.Equal(t, "BRK", res.Signals[0].Instrument)
	assert.Equal(t, []models.PatternKind{models.PatternBreakout}, res.Signals[0].Kinds())

	out, err := run(t, dir, "scan", "--date", testutil.Day(sessions-1).Format(models.DateLayout))
	require.NoError(t, err)
	assert.Contains(t, out, "Signals")
	assert.Contains(t, out, "BRK")

	_, err = run(t, dir, "scan", "--date", "2024/01/01")
	var verr *errors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestScanWritesMetrics(t *testing.T) {
	dir := workspace(t)
	importData(t, dir)

	file := filepath.Join(dir, "scan.prom")
	_, err := run(t, dir, "scan", "--metrics-file", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pivotscan_")
}

func TestRegime(t *testing.T) {
	dir := workspace(t)
	importData(t, dir)

	var info regime.Info
	runJSON(t, dir, &info, "regime")
	assert.Equal(t, regime.StatusTradable, info.Status)
	assert.True(t, info.Tradable)

	runJSON(t, dir, &info, "regime", "--index", "NOPE")
	assert.Equal(t, regime.StatusUnknown, info.Status)
	assert.False(t, info.Tradable)
}

func TestSize(t *testing.T) {
	dir := t.TempDir()
	var q ledger.Sizing
	runJSON(t, dir, &q, "size", "100", "--account", "100000", "--risk", "0.02", "--stop", "0.1")
	assert.Equal(t, int64(200), q.Shares)
	assert.Equal(t, 90.0, q.StopPrice)
	assert.Equal(t, 20000.0, q.Cost)

	_, err := run(t, dir, "size", "-5")
	assert.Error(t, err)
}

func TestPositionLifecycle(t *testing.T) {
	dir := workspace(t)
	importData(t, dir)
	entryBar := breakoutBars()[200]

	var pos models.Position
	runJSON(t, dir, &pos, "position", "open", "BRK", "--date", entryBar.Date.Format(models.DateLayout),
		"--patterns", "breakout", "--score", "37")
	assert.Equal(t, models.PositionOpen, pos.Status)
	assert.Equal(t, entryBar.Close, pos.EntryPrice)
	assert.Equal(t, ledger.Quote(100000, 0.02, entryBar.Close, 0.10).Shares, pos.Shares)
	assert.Equal(t, []models.PatternKind{models.PatternBreakout}, pos.Patterns)

	_, err := run(t, dir, "position", "open", "BRK", "--date", entryBar.Date.Format(models.DateLayout))
	assert.ErrorIs(t, err, errors.ErrDuplicateOpenPosition)

	var open []models.Position
	runJSON(t, dir, &open, "position", "list")
	require.Len(t, open, 1)
	assert.Equal(t, pos.ID, open[0].ID)

	// The series rises 0.6% a session with highs 1% above the close, so the
	// 20% target is reached 29 sessions after entry.
	var closed []models.ClosedTrade
	runJSON(t, dir, &closed, "position", "evaluate")
	require.Len(t, closed, 1)
	assert.Equal(t, models.PositionClosedTarget, closed[0].Status)
	assert.Equal(t, 29, closed[0].DaysHeld)
	assert.Equal(t, testutil.Day(229), closed[0].ExitDate)

	open = nil
	runJSON(t, dir, &open, "position", "list")
	assert.Empty(t, open)

	var summary report.Summary
	runJSON(t, dir, &summary, "perf")
	assert.Equal(t, 1, summary.Trades)
	assert.Equal(t, 1, summary.Wins)
	assert.Equal(t, 100.0, summary.WinRate)
	assert.InDelta(t, 20.0, summary.TotalReturnPct, 1e-6)
}

func TestPositionManualClose(t *testing.T) {
	dir := workspace(t)
	importData(t, dir)

	_, err := run(t, dir, "position", "open", "BRK", "100", "--date", testutil.Day(250).Format(models.DateLayout),
		"--shares", "10")
	require.NoError(t, err)

	var trades []models.ClosedTrade
	runJSON(t, dir, &trades, "position", "close", "BRK", "110",
		"--date", testutil.Day(255).Format(models.DateLayout))
	require.Len(t, trades, 1)
	assert.Equal(t, models.PositionClosedManual, trades[0].Status)
	assert.InDelta(t, 10.0, trades[0].ReturnPct, 1e-9)
	assert.InDelta(t, 100.0, trades[0].ReturnAmount, 1e-9)

	_, err = run(t, dir, "position", "close", "BRK", "110")
	assert.ErrorIs(t, err, errors.ErrPositionNotFound)

	var all []models.Position
	runJSON(t, dir, &all, "position", "list", "--all")
	require.Len(t, all, 1)
	assert.Equal(t, models.PositionClosedManual, all[0].Status)
}

func TestBacktest(t *testing.T) {
	dir := workspace(t)
	importData(t, dir)
	from := testutil.Day(250).Format(models.DateLayout)

	// The only breakout is on the last session, so the replay ends holding it.
	var res backtest.Result
	runJSON(t, dir, &res, "backtest", "--from", from)
	assert.Equal(t, 10, res.Sessions)
	assert.Equal(t, 1, res.Signals)
	assert.Empty(t, res.Trades)
	require.Len(t, res.Open, 1)
	assert.Equal(t, "BRK", res.Open[0].Instrument)
	assert.Equal(t, testutil.Day(sessions-1), res.Open[0].EntryDate)
	assert.Equal(t, 100000.0, res.FinalEquity)

	res = backtest.Result{}
	runJSON(t, dir, &res, "backtest", "--from", from, "--min-score", "40")
	assert.Empty(t, res.Open)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, backtest.SkipMinScore, res.Skipped[0].Reason)

	out, err := run(t, dir, "backtest", "--from", from, "--trades")
	require.NoError(t, err)
	assert.Contains(t, out, "Open at end")

	// The replay keeps its own ledger.
	var open []models.Position
	runJSON(t, dir, &open, "position", "list")
	assert.Empty(t, open)

	_, err = run(t, dir, "backtest")
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)
}

func TestHelpCommands(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "commands")
	require.NoError(t, err)
	assert.Contains(t, out, "position evaluate")

	out, err = run(t, dir, "quickstart")
	require.NoError(t, err)
	assert.Contains(t, out, "pivotscan import --dir ./data")
}
