package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.ObserveScan(150*time.Millisecond, 3, 7, true)
	r.ObserveInstrument("scored")
	r.ObserveInstrument("scored")
	r.ObserveInstrument("skipped")
	r.ObservePattern("vcp")
	r.SetOpenPositions(2)
	r.ObserveClosed("CLOSED_STOP")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ScansTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.SignalsLast))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.WatchlistLast))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RegimeTradable))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.InstrumentsTotal.WithLabelValues("scored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PatternsDetected.WithLabelValues("vcp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.PositionsOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PositionsClosed.WithLabelValues("CLOSED_STOP")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveScan(time.Second, 1, 1, false)
		r.ObserveInstrument("scored")
		r.ObservePattern("vcp")
		r.SetOpenPositions(1)
		r.ObserveClosed("CLOSED_TIME")
	})
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "none.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveScan(time.Second, 1, 0, false)

	path := filepath.Join(t.TempDir(), "pivotscan.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pivotscan_scans_total 1")
	assert.Contains(t, string(data), "pivotscan_regime_tradable 0")
}
