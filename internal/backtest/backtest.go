// Package backtest replays the scanner over stored history. Each session is
// scanned as if it were the latest one, signals open positions in a private
// ledger, and open positions are evaluated against every later bar.
package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pivotscan/internal/errors"
	"pivotscan/internal/ledger"
	"pivotscan/internal/logging"
	"pivotscan/internal/models"
	"pivotscan/internal/report"
	"pivotscan/internal/scan"
	"pivotscan/internal/series"
)

// Skip reasons for signals that did not become positions.
const (
	SkipHeld       = "already_held"
	SkipMaxOpen    = "max_open_positions"
	SkipZeroShares = "zero_shares"
	SkipMinScore   = "below_min_score"
)

// Config holds a replay's range and sizing.
type Config struct {
	From        time.Time
	To          time.Time
	MinScore    int
	AccountSize float64
	RiskPct     float64
	Universe    []string
	IndexSymbol string
	Ledger      ledger.Config
}

// SkippedSignal is a signal that was not traded.
type SkippedSignal struct {
	Date       time.Time `json:"date" yaml:"date"`
	Instrument string    `json:"instrument" yaml:"instrument"`
	Score      int       `json:"score" yaml:"score"`
	Reason     string    `json:"reason" yaml:"reason"`
}

// OpenPosition is a position still open when the replay ends, marked at the
// last close seen.
type OpenPosition struct {
	models.Position `yaml:",inline"`
	MarkPrice       float64 `json:"mark_price" yaml:"mark_price"`
	UnrealizedPct   float64 `json:"unrealized_pct" yaml:"unrealized_pct"`
}

// EquityPoint is the account value at the close of one session.
type EquityPoint struct {
	Date   time.Time `json:"date" yaml:"date"`
	Equity float64   `json:"equity" yaml:"equity"`
}

// Result is the outcome of one replay.
type Result struct {
	From           time.Time            `json:"from" yaml:"from"`
	To             time.Time            `json:"to" yaml:"to"`
	Sessions       int                  `json:"sessions" yaml:"sessions"`
	Signals        int                  `json:"signals" yaml:"signals"`
	Trades         []models.ClosedTrade `json:"trades" yaml:"trades"`
	Open           []OpenPosition       `json:"open" yaml:"open"`
	Skipped        []SkippedSignal      `json:"skipped" yaml:"skipped"`
	Summary        report.Summary       `json:"summary" yaml:"summary"`
	InitialEquity  float64              `json:"initial_equity" yaml:"initial_equity"`
	FinalEquity    float64              `json:"final_equity" yaml:"final_equity"`
	MaxDrawdownPct float64              `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	EquityCurve    []EquityPoint        `json:"equity_curve" yaml:"equity_curve"`
}

// Engine runs replays over one series store.
type Engine struct {
	bars    *series.Store
	scanner *scan.Orchestrator
	logger  zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine that scans bars with scanner. The scanner must
// read the same store.
func NewEngine(bars *series.Store, scanner *scan.Orchestrator, opts ...Option) *Engine {
	e := &Engine{bars: bars, scanner: scanner, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// state is the mutable bookkeeping of one replay.
type state struct {
	book      *ledger.Ledger
	realized  decimal.Decimal
	lastClose map[string]float64
	peak      float64
	drawdown  float64
}

// Run replays every session in [cfg.From, cfg.To]. Per session the open
// positions are evaluated first, then the session is scanned and its
// signals are opened at the session close in rank order.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if cfg.Ledger.StopPct <= 0 {
		cfg.Ledger.StopPct = ledger.DefaultConfig().StopPct
	}
	from, to := models.SessionDate(cfg.From), models.SessionDate(cfg.To)
	sessions := e.sessions(from, to)
	if len(sessions) == 0 {
		return nil, errors.NewDataError("bars", "*", "no sessions between "+
			from.Format(models.DateLayout)+" and "+to.Format(models.DateLayout), errors.ErrDataNotFound)
	}

	log := logging.WithOperation(e.logger, "backtest")
	st := &state{
		book:      ledger.New(cfg.Ledger, ledger.WithLogger(log)),
		lastClose: make(map[string]float64),
		peak:      cfg.AccountSize,
	}
	res := &Result{
		From:          from,
		To:            to,
		Sessions:      len(sessions),
		Trades:        []models.ClosedTrade{},
		Open:          []OpenPosition{},
		Skipped:       []SkippedSignal{},
		InitialEquity: cfg.AccountSize,
		EquityCurve:   make([]EquityPoint, 0, len(sessions)),
	}

	for _, date := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "backtest cancelled")
		}
		if err := e.evaluateOpen(ctx, st, res, date); err != nil {
			return nil, err
		}
		if err := e.enter(ctx, cfg, st, res, date); err != nil {
			return nil, err
		}
		e.markToMarket(cfg, st, res, date)
	}

	for _, p := range st.book.OpenPositions() {
		mark := st.lastClose[p.Instrument]
		res.Open = append(res.Open, OpenPosition{
			Position:      p,
			MarkPrice:     mark,
			UnrealizedPct: pct(mark, p.EntryPrice),
		})
	}
	sort.SliceStable(res.Trades, func(i, j int) bool { return res.Trades[i].ExitDate.Before(res.Trades[j].ExitDate) })
	res.Summary = report.Summarize(res.Trades)
	res.MaxDrawdownPct = round(st.drawdown*100, 4)

	log.Info().
		Str("from", from.Format(models.DateLayout)).
		Str("to", to.Format(models.DateLayout)).
		Int("sessions", res.Sessions).
		Int("signals", res.Signals).
		Int("trades", len(res.Trades)).
		Int("open", len(res.Open)).
		Float64("final_equity", res.FinalEquity).
		Msg("Backtest completed")
	return res, nil
}

func (e *Engine) evaluateOpen(ctx context.Context, st *state, res *Result, date time.Time) error {
	for _, inst := range st.book.OpenInstruments() {
		bar, ok := e.bars.BarAt(inst, date)
		if !ok {
			continue
		}
		st.lastClose[inst] = bar.Close
		trades, err := st.book.Evaluate(ctx, inst, bar)
		if err != nil {
			return errors.Wrapf(err, "evaluating %s on %s", inst, date.Format(models.DateLayout))
		}
		for _, t := range trades {
			st.realized = st.realized.Add(decimal.NewFromFloat(t.ReturnAmount))
			res.Trades = append(res.Trades, t)
		}
	}
	return nil
}

func (e *Engine) enter(ctx context.Context, cfg Config, st *state, res *Result, date time.Time) error {
	scanned, err := e.scanner.Scan(ctx, scan.Request{Date: date, Universe: cfg.Universe, IndexSymbol: cfg.IndexSymbol})
	if err != nil {
		return errors.Wrapf(err, "scanning %s", date.Format(models.DateLayout))
	}
	for _, sig := range scanned.Signals {
		res.Signals++
		skip := func(reason string) {
			res.Skipped = append(res.Skipped, SkippedSignal{Date: date, Instrument: sig.Instrument, Score: sig.Score, Reason: reason})
		}
		if sig.Score < cfg.MinScore {
			skip(SkipMinScore)
			continue
		}

		equity, _ := decimal.NewFromFloat(cfg.AccountSize).Add(st.realized).Float64()
		shares := ledger.Quote(equity, cfg.RiskPct, sig.Close, cfg.Ledger.StopPct).Shares
		if shares == 0 {
			skip(SkipZeroShares)
			continue
		}
		_, err := st.book.Open(ctx, ledger.OpenRequest{
			Instrument: sig.Instrument,
			EntryDate:  date,
			EntryPrice: sig.Close,
			Shares:     shares,
			Score:      sig.Score,
			Patterns:   sig.Kinds(),
		})
		switch {
		case err == nil:
			st.lastClose[sig.Instrument] = sig.Close
		case errors.Is(err, errors.ErrDuplicateOpenPosition):
			skip(SkipHeld)
		case errors.Is(err, errors.ErrMaxOpenPositions):
			skip(SkipMaxOpen)
		default:
			return errors.Wrapf(err, "opening %s", sig.Instrument)
		}
	}
	return nil
}

// markToMarket records the session's equity: the account plus realized
// returns plus the open positions valued at their last close.
func (e *Engine) markToMarket(cfg Config, st *state, res *Result, date time.Time) {
	equity := decimal.NewFromFloat(cfg.AccountSize).Add(st.realized)
	for _, p := range st.book.OpenPositions() {
		move := decimal.NewFromFloat(st.lastClose[p.Instrument]).Sub(decimal.NewFromFloat(p.EntryPrice))
		equity = equity.Add(move.Mul(decimal.NewFromInt(p.Shares)))
	}
	value := equity.Round(2).InexactFloat64()
	res.EquityCurve = append(res.EquityCurve, EquityPoint{Date: date, Equity: value})
	res.FinalEquity = value

	if value > st.peak {
		st.peak = value
	}
	if st.peak > 0 {
		if dd := (st.peak - value) / st.peak; dd > st.drawdown {
			st.drawdown = dd
		}
	}
}

// sessions returns the distinct bar dates of every stored instrument inside
// [from, to], ascending.
func (e *Engine) sessions(from, to time.Time) []time.Time {
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, sym := range e.bars.Instruments() {
		for _, b := range e.bars.Range(sym, from.AddDate(0, 0, -1), to) {
			d := models.SessionDate(b.Date)
			if d.Before(from) || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func validate(cfg Config) error {
	switch {
	case cfg.From.IsZero():
		return errors.NewValidationError("from", cfg.From, "required")
	case cfg.To.IsZero():
		return errors.NewValidationError("to", cfg.To, "required")
	case cfg.To.Before(cfg.From):
		return errors.NewValidationError("to", cfg.To.Format(models.DateLayout), "precedes from")
	case cfg.AccountSize <= 0:
		return errors.NewValidationError("account_size", cfg.AccountSize, "must be positive")
	case cfg.MinScore < 0:
		return errors.NewValidationError("min_score", cfg.MinScore, "must not be negative")
	}
	return nil
}

func pct(price, entry float64) float64 {
	if entry <= 0 {
		return 0
	}
	return round((price-entry)/entry*100, 4)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
