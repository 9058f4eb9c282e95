// Package scan runs the detectors, scorer and regime gate across a universe
// of instruments and ranks the outcome.
package scan

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pivotscan/internal/analysis/patterns"
	"pivotscan/internal/analysis/regime"
	"pivotscan/internal/analysis/scoring"
	"pivotscan/internal/errors"
	"pivotscan/internal/logging"
	"pivotscan/internal/metrics"
	"pivotscan/internal/models"
	"pivotscan/internal/series"
)

// Skip reasons.
const (
	SkipUnknown      = "unknown_instrument"
	SkipInsufficient = "insufficient_history"
	SkipNoBarOnDate  = "no_bar_on_date"
	SkipError        = "error"
)

// Config holds orchestrator settings.
type Config struct {
	SignalThreshold int
	WatchThreshold  int
	Workers         int
	WindowLength    int
	VolumePeriod    int
	IndexSymbol     string
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		SignalThreshold: 30,
		WatchThreshold:  10,
		Workers:         4,
		WindowLength:    252,
		VolumePeriod:    50,
		IndexSymbol:     "SPY",
	}
}

// Request selects what to scan. A zero Date scans the latest session in the
// store; an empty Universe scans every stored instrument. Duplicates and the
// index symbol are dropped from the universe.
type Request struct {
	Date        time.Time
	Universe    []string
	IndexSymbol string
}

// Orchestrator scans a series store. It never mutates the store.
type Orchestrator struct {
	store     *series.Store
	detectors []patterns.Detector
	scorer    *scoring.SignalScorer
	gate      *regime.Gate
	config    Config
	logger    zerolog.Logger
	metrics   *metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithDetectors replaces the default detector set.
func WithDetectors(detectors []patterns.Detector) Option {
	return func(o *Orchestrator) { o.detectors = detectors }
}

// NewOrchestrator creates an orchestrator over store.
func NewOrchestrator(store *series.Store, gate *regime.Gate, scorer *scoring.SignalScorer, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = def.WindowLength
	}
	if cfg.VolumePeriod <= 0 {
		cfg.VolumePeriod = def.VolumePeriod
	}
	if cfg.IndexSymbol == "" {
		cfg.IndexSymbol = def.IndexSymbol
	}
	o := &Orchestrator{
		store:     store,
		detectors: patterns.All(),
		scorer:    scorer,
		gate:      gate,
		config:    cfg,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type outcome struct {
	entry   *Entry
	skipped *Skipped
}

// Scan evaluates every instrument of the request and partitions the scored
// entries into signals and watchlist.
func (o *Orchestrator) Scan(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	log := logging.WithOperation(o.logger, "scan")

	index := req.IndexSymbol
	if index == "" {
		index = o.config.IndexSymbol
	}
	symbols := req.Universe
	if len(symbols) == 0 {
		symbols = o.store.Instruments()
	}
	universe := uniqueSymbols(symbols, index)
	date := models.SessionDate(req.Date)
	if req.Date.IsZero() {
		date = o.latestDate(append([]string{index}, universe...))
	}

	info := o.evaluateRegime(index, date)
	log.Debug().
		Str("date", date.Format(models.DateLayout)).
		Str("regime", string(info.Status)).
		Int("instruments", len(universe)).
		Msg("Scan started")

	outcomes := make([]outcome, len(universe))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i, sym := range universe {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = o.evaluate(sym, date, info)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "scan cancelled")
	}

	result := &Result{
		Date:      date,
		Regime:    info,
		Signals:   []Entry{},
		Watchlist: []Entry{},
		Skipped:   []Skipped{},
	}
	for _, oc := range outcomes {
		if oc.skipped != nil {
			result.Skipped = append(result.Skipped, *oc.skipped)
			continue
		}
		if oc.entry == nil {
			continue
		}
		if hasTag(oc.entry.Tags, TagSignal) {
			result.Signals = append(result.Signals, *oc.entry)
		} else {
			result.Watchlist = append(result.Watchlist, *oc.entry)
		}
	}
	sortSignals(result.Signals)
	sortWatchlist(result.Watchlist)

	for _, e := range result.Signals {
		logging.LogSignal(log, e.Instrument, e.Score, kindNames(e.Kinds()), e.VolumeRatio)
	}
	o.metrics.ObserveScan(time.Since(start), len(result.Signals), len(result.Watchlist), info.Tradable)
	log.Info().
		Int("signals", len(result.Signals)).
		Int("watchlist", len(result.Watchlist)).
		Int("skipped", len(result.Skipped)).
		Dur("duration", time.Since(start)).
		Msg("Scan completed")
	return result, nil
}

// evaluate scores one instrument and classifies it. A nil entry means the
// instrument scored below every threshold.
func (o *Orchestrator) evaluate(symbol string, date time.Time, info regime.Info) outcome {
	log := logging.WithSymbol(o.logger, symbol)

	w, err := o.store.WindowUpTo(symbol, date, o.config.WindowLength)
	if err != nil {
		reason := SkipError
		switch {
		case errors.Is(err, errors.ErrUnknownInstrument):
			reason = SkipUnknown
		case errors.Is(err, errors.ErrInsufficientHistory):
			reason = SkipInsufficient
		}
		log.Warn().Err(err).Str("reason", reason).Msg("Skipping instrument")
		o.metrics.ObserveInstrument("skipped")
		return outcome{skipped: &Skipped{Symbol: symbol, Reason: reason}}
	}
	if !w.EndDate().Equal(date) {
		log.Warn().
			Str("last_bar", w.EndDate().Format(models.DateLayout)).
			Msg("Skipping instrument without a bar on the scan date")
		o.metrics.ObserveInstrument("skipped")
		return outcome{skipped: &Skipped{Symbol: symbol, Reason: SkipNoBarOnDate}}
	}

	matches := patterns.DetectAll(o.detectors, w)
	for _, m := range matches {
		if m.Reason == models.ReasonInsufficientData {
			log.Debug().Str("pattern", string(m.Kind)).Int("bars", w.Len()).Msg("Insufficient history for detector")
		}
		if m.Detected {
			o.metrics.ObservePattern(string(m.Kind))
		}
	}

	volumeRatio := 0.0
	if avg, err := o.store.AverageVolume(symbol, o.config.VolumePeriod, date); err == nil && avg > 0 {
		volumeRatio = float64(w.Last().Volume) / avg
	}

	score := o.scorer.Score(symbol, date, matches, volumeRatio)
	o.metrics.ObserveInstrument("scored")

	entry := &Entry{
		SignalScore: score,
		Close:       w.Last().Close,
		Pivot:       bestPivot(score.Matches),
		NearMisses:  patterns.NearMisses(w),
	}

	switch {
	case score.Score >= o.config.SignalThreshold && info.Tradable:
		entry.Tags = []string{TagSignal}
	case score.Score >= o.config.WatchThreshold && !info.Tradable:
		entry.Tags = []string{TagRegimeBlocked}
	case score.Score >= o.config.WatchThreshold:
		entry.Tags = []string{TagWatch}
	case len(entry.NearMisses) > 0:
		entry.Tags = []string{TagNearMiss}
	default:
		return outcome{}
	}
	return outcome{entry: entry}
}

func (o *Orchestrator) evaluateRegime(index string, date time.Time) regime.Info {
	w, err := o.store.WindowUpTo(index, date, o.gate.Lookback())
	if err != nil {
		o.logger.Warn().Err(err).Str("index", index).Msg("Regime index unavailable")
		return o.gate.Evaluate(nil)
	}
	if w.Len() < o.gate.Lookback() {
		o.logger.Debug().Str("index", index).Int("bars", w.Len()).Msg("Short regime history")
	}
	return o.gate.Evaluate(w)
}

func (o *Orchestrator) latestDate(symbols []string) time.Time {
	var latest time.Time
	for _, sym := range symbols {
		if b, ok := o.store.Last(sym); ok && b.Date.After(latest) {
			latest = b.Date
		}
	}
	return latest
}

// bestPivot returns the pivot of the highest-tier detected match.
func bestPivot(matches []models.PatternMatch) float64 {
	pivot, tier := 0.0, 0
	for _, m := range matches {
		if !scoring.IsScored(m.Kind) {
			continue
		}
		if tier == 0 || m.Tier < tier {
			pivot, tier = m.Pivot(), m.Tier
		}
	}
	return pivot
}

// uniqueSymbols keeps the first occurrence of each symbol, skipping blanks
// and the index.
func uniqueSymbols(symbols []string, index string) []string {
	seen := map[string]bool{index: true}
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

func kindNames(kinds []models.PatternKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
