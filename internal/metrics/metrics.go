// Package metrics records scan and ledger activity as Prometheus metrics.
// The CLI is short-lived, so metrics are exported to a node_exporter
// textfile rather than served over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds all pivotscan metrics on a private registry. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	ScanDuration      prometheus.Histogram
	ScansTotal        prometheus.Counter
	InstrumentsTotal  *prometheus.CounterVec
	PatternsDetected  *prometheus.CounterVec
	SignalsLast       prometheus.Gauge
	WatchlistLast     prometheus.Gauge
	RegimeTradable    prometheus.Gauge
	PositionsOpen     prometheus.Gauge
	PositionsClosed   *prometheus.CounterVec
	LastScanTimestamp prometheus.Gauge
}

// NewRecorder creates a recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pivotscan_scan_duration_seconds",
			Help:    "Duration of a full universe scan in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pivotscan_scans_total",
			Help: "Total number of completed scans",
		}),
		InstrumentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pivotscan_instruments_total",
			Help: "Instruments processed by outcome",
		}, []string{"outcome"}),
		PatternsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pivotscan_patterns_detected_total",
			Help: "Detected patterns by kind",
		}, []string{"kind"}),
		SignalsLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pivotscan_signals",
			Help: "Ranked signals produced by the last scan",
		}),
		WatchlistLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pivotscan_watchlist",
			Help: "Watchlist entries produced by the last scan",
		}),
		RegimeTradable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pivotscan_regime_tradable",
			Help: "1 when the market regime allowed new signals in the last scan",
		}),
		PositionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pivotscan_positions_open",
			Help: "Currently open ledger positions",
		}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pivotscan_positions_closed_total",
			Help: "Closed positions by exit status",
		}, []string{"status"}),
		LastScanTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pivotscan_last_scan_timestamp_seconds",
			Help: "Unix time of the last completed scan",
		}),
	}

	r.registry.MustRegister(
		r.ScanDuration,
		r.ScansTotal,
		r.InstrumentsTotal,
		r.PatternsDetected,
		r.SignalsLast,
		r.WatchlistLast,
		r.RegimeTradable,
		r.PositionsOpen,
		r.PositionsClosed,
		r.LastScanTimestamp,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveScan records the outcome of one completed scan.
func (r *Recorder) ObserveScan(duration time.Duration, signals, watchlist int, tradable bool) {
	if r == nil {
		return
	}
	r.ScanDuration.Observe(duration.Seconds())
	r.ScansTotal.Inc()
	r.SignalsLast.Set(float64(signals))
	r.WatchlistLast.Set(float64(watchlist))
	if tradable {
		r.RegimeTradable.Set(1)
	} else {
		r.RegimeTradable.Set(0)
	}
	r.LastScanTimestamp.SetToCurrentTime()
}

// ObserveInstrument counts one instrument by outcome (scored, skipped).
func (r *Recorder) ObserveInstrument(outcome string) {
	if r == nil {
		return
	}
	r.InstrumentsTotal.WithLabelValues(outcome).Inc()
}

// ObservePattern counts one detected pattern.
func (r *Recorder) ObservePattern(kind string) {
	if r == nil {
		return
	}
	r.PatternsDetected.WithLabelValues(kind).Inc()
}

// SetOpenPositions records the current open position count.
func (r *Recorder) SetOpenPositions(n int) {
	if r == nil {
		return
	}
	r.PositionsOpen.Set(float64(n))
}

// ObserveClosed counts one closed position by status.
func (r *Recorder) ObserveClosed(status string) {
	if r == nil {
		return
	}
	r.PositionsClosed.WithLabelValues(status).Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
