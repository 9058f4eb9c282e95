// Package ledger tracks long positions opened from scan signals and closes
// them on stop, target, time or manual exit.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pivotscan/internal/errors"
	"pivotscan/internal/logging"
	"pivotscan/internal/metrics"
	"pivotscan/internal/models"
)

// Repository persists position transitions.
type Repository interface {
	SavePosition(ctx context.Context, p *models.Position) error
	ListPositions(ctx context.Context) ([]models.Position, error)
}

// Config holds ledger defaults and limits.
type Config struct {
	StopPct          float64
	TargetPct        float64
	MaxHoldDays      int
	MaxOpenPositions int
	SinglePosition   bool
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	return Config{
		StopPct:          0.10,
		TargetPct:        0.20,
		MaxHoldDays:      60,
		MaxOpenPositions: 5,
		SinglePosition:   true,
	}
}

// OpenRequest describes a position to open. Zero StopPct, TargetPct and
// MaxHoldDays take the ledger defaults.
type OpenRequest struct {
	Instrument  string
	EntryDate   time.Time
	EntryPrice  float64
	StopPct     float64
	TargetPct   float64
	MaxHoldDays int
	Shares      int64
	Score       int
	Patterns    []models.PatternKind
}

// Ledger is an append-only position history. Operations on one instrument
// are serialized; different instruments proceed in parallel.
type Ledger struct {
	config  Config
	repo    Repository
	logger  zerolog.Logger
	metrics *metrics.Recorder

	mu        sync.RWMutex
	positions []*models.Position
	locks     map[string]*sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRepository persists every transition to repo.
func WithRepository(repo Repository) Option {
	return func(l *Ledger) { l.repo = repo }
}

// WithLogger sets the ledger logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(l *Ledger) { l.metrics = r }
}

// New creates an empty ledger.
func New(cfg Config, opts ...Option) *Ledger {
	def := DefaultConfig()
	if cfg.StopPct <= 0 {
		cfg.StopPct = def.StopPct
	}
	if cfg.TargetPct <= 0 {
		cfg.TargetPct = def.TargetPct
	}
	if cfg.MaxHoldDays <= 0 {
		cfg.MaxHoldDays = def.MaxHoldDays
	}
	if cfg.MaxOpenPositions <= 0 {
		cfg.MaxOpenPositions = def.MaxOpenPositions
	}
	l := &Ledger{
		config: cfg,
		logger: zerolog.Nop(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory history with the repository contents.
func (l *Ledger) Load(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	stored, err := l.repo.ListPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "loading positions")
	}
	positions := make([]*models.Position, len(stored))
	for i := range stored {
		positions[i] = &stored[i]
	}

	l.mu.Lock()
	l.positions = positions
	open := l.openCountLocked()
	l.mu.Unlock()

	l.metrics.SetOpenPositions(open)
	l.logger.Debug().Int("positions", len(positions)).Int("open", open).Msg("Ledger loaded")
	return nil
}

// Open validates req and records a new OPEN position.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (*models.Position, error) {
	req = l.withDefaults(req)
	if err := validateOpen(req); err != nil {
		return nil, err
	}

	unlock := l.lockInstrument(req.Instrument)
	defer unlock()

	entry := models.SessionDate(req.EntryDate)
	p := &models.Position{
		ID:          uuid.NewString(),
		Instrument:  req.Instrument,
		EntryDate:   entry,
		EntryPrice:  req.EntryPrice,
		StopPrice:   req.EntryPrice * (1 - req.StopPct),
		TargetPrice: req.EntryPrice * (1 + req.TargetPct),
		MaxHoldDate: entry.AddDate(0, 0, req.MaxHoldDays),
		Shares:      req.Shares,
		Score:       req.Score,
		Patterns:    append([]models.PatternKind(nil), req.Patterns...),
		Status:      models.PositionOpen,
	}

	l.mu.Lock()
	if l.config.SinglePosition {
		for _, existing := range l.positions {
			if existing.Instrument == req.Instrument && existing.IsOpen() {
				l.mu.Unlock()
				return nil, errors.NewPositionError(req.Instrument, "open", "instrument already held", errors.ErrDuplicateOpenPosition)
			}
		}
	}
	open := l.openCountLocked()
	if open >= l.config.MaxOpenPositions {
		l.mu.Unlock()
		return nil, errors.NewRiskError("max_open_positions", float64(open), float64(l.config.MaxOpenPositions),
			"open position limit reached")
	}
	l.positions = append(l.positions, p)
	out := *p
	l.mu.Unlock()

	if err := l.persist(ctx, &out); err != nil {
		l.mu.Lock()
		for i, existing := range l.positions {
			if existing == p {
				l.positions = append(l.positions[:i], l.positions[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
		return nil, err
	}
	l.metrics.SetOpenPositions(open + 1)
	logging.LogPositionTransition(l.logger, out.ID, out.Instrument, string(out.Status), out.EntryPrice)
	return &out, nil
}

// Evaluate applies bar to every OPEN position on instrument entered before
// the bar date. The stop is checked before the target, so a bar spanning
// both closes at the stop.
func (l *Ledger) Evaluate(ctx context.Context, instrument string, bar models.Bar) ([]models.ClosedTrade, error) {
	if !bar.Valid() {
		return nil, errors.NewDataError("bar", instrument, "malformed bar", errors.ErrInvalidBar)
	}
	unlock := l.lockInstrument(instrument)
	defer unlock()

	date := models.SessionDate(bar.Date)
	return l.closeMatching(ctx, instrument, func(p *models.Position) (models.PositionStatus, float64, bool) {
		if !date.After(p.EntryDate) {
			return "", 0, false
		}
		switch {
		case bar.Low <= p.StopPrice:
			return models.PositionClosedStop, p.StopPrice, true
		case bar.High >= p.TargetPrice:
			return models.PositionClosedTarget, p.TargetPrice, true
		case !date.Before(p.MaxHoldDate):
			return models.PositionClosedTime, bar.Close, true
		}
		return "", 0, false
	}, date)
}

// Close exits every OPEN position on instrument at price.
func (l *Ledger) Close(ctx context.Context, instrument string, price float64, date time.Time) ([]models.ClosedTrade, error) {
	if price <= 0 {
		return nil, errors.NewValidationError("price", price, "must be positive")
	}
	unlock := l.lockInstrument(instrument)
	defer unlock()

	date = models.SessionDate(date)
	var early bool
	trades, err := l.closeMatching(ctx, instrument, func(p *models.Position) (models.PositionStatus, float64, bool) {
		if date.Before(p.EntryDate) {
			early = true
			return "", 0, false
		}
		return models.PositionClosedManual, price, true
	}, date)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		if early {
			return nil, errors.NewValidationError("date", date.Format(models.DateLayout), "exit precedes entry")
		}
		return nil, errors.NewPositionError(instrument, "close", "no open position", errors.ErrPositionNotFound)
	}
	return trades, nil
}

// exitRule decides whether an open position exits, with which status and
// at which price.
type exitRule func(p *models.Position) (models.PositionStatus, float64, bool)

// closeMatching transitions the open positions of instrument accepted by
// rule. The caller holds the instrument lock.
func (l *Ledger) closeMatching(ctx context.Context, instrument string, rule exitRule, date time.Time) ([]models.ClosedTrade, error) {
	l.mu.RLock()
	var candidates []*models.Position
	for _, p := range l.positions {
		if p.Instrument == instrument && p.IsOpen() {
			candidates = append(candidates, p)
		}
	}
	l.mu.RUnlock()

	trades := []models.ClosedTrade{}
	for _, p := range candidates {
		l.mu.RLock()
		snapshot := *p
		l.mu.RUnlock()

		status, price, ok := rule(&snapshot)
		if !ok {
			continue
		}
		exitDate := date
		exitPrice := price
		snapshot.Status = status
		snapshot.ExitDate = &exitDate
		snapshot.ExitPrice = &exitPrice

		if err := l.persist(ctx, &snapshot); err != nil {
			return trades, err
		}
		l.mu.Lock()
		*p = snapshot
		open := l.openCountLocked()
		l.mu.Unlock()

		trade, _ := models.TradeFromPosition(&snapshot)
		trades = append(trades, trade)
		l.metrics.ObserveClosed(string(status))
		l.metrics.SetOpenPositions(open)
		logging.LogPositionTransition(l.logger, snapshot.ID, instrument, string(status), exitPrice)
	}
	return trades, nil
}

// Positions returns a copy of the full history in opening order.
func (l *Ledger) Positions() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Position, len(l.positions))
	for i, p := range l.positions {
		out[i] = *p
	}
	return out
}

// OpenPositions returns the OPEN positions sorted by instrument.
func (l *Ledger) OpenPositions() []models.Position {
	var out []models.Position
	for _, p := range l.Positions() {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// OpenInstruments returns the distinct instruments with an OPEN position.
func (l *Ledger) OpenInstruments() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range l.OpenPositions() {
		if !seen[p.Instrument] {
			seen[p.Instrument] = true
			out = append(out, p.Instrument)
		}
	}
	return out
}

// ClosedTrades returns the realized trades in exit order.
func (l *Ledger) ClosedTrades() []models.ClosedTrade {
	var out []models.ClosedTrade
	for _, p := range l.Positions() {
		if trade, ok := models.TradeFromPosition(&p); ok {
			out = append(out, trade)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitDate.Before(out[j].ExitDate) })
	return out
}

func (l *Ledger) withDefaults(req OpenRequest) OpenRequest {
	if req.StopPct == 0 {
		req.StopPct = l.config.StopPct
	}
	if req.TargetPct == 0 {
		req.TargetPct = l.config.TargetPct
	}
	if req.MaxHoldDays == 0 {
		req.MaxHoldDays = l.config.MaxHoldDays
	}
	return req
}

func validateOpen(req OpenRequest) error {
	switch {
	case req.Instrument == "":
		return errors.NewValidationError("instrument", req.Instrument, "required")
	case req.EntryDate.IsZero():
		return errors.NewValidationError("entry_date", req.EntryDate, "required")
	case req.EntryPrice <= 0:
		return errors.NewValidationError("entry_price", req.EntryPrice, "must be positive")
	case req.StopPct <= 0 || req.StopPct >= 1:
		return errors.NewValidationError("stop_pct", req.StopPct, "must be in (0, 1)")
	case req.TargetPct <= 0:
		return errors.NewValidationError("target_pct", req.TargetPct, "must be positive")
	case req.MaxHoldDays <= 0:
		return errors.NewValidationError("max_hold_days", req.MaxHoldDays, "must be positive")
	case req.Shares < 0:
		return errors.NewValidationError("shares", req.Shares, "must not be negative")
	}
	return nil
}

func (l *Ledger) lockInstrument(instrument string) func() {
	l.mu.Lock()
	m, ok := l.locks[instrument]
	if !ok {
		m = &sync.Mutex{}
		l.locks[instrument] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (l *Ledger) openCountLocked() int {
	n := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

func (l *Ledger) persist(ctx context.Context, p *models.Position) error {
	if l.repo == nil {
		return nil
	}
	if err := l.repo.SavePosition(ctx, p); err != nil {
		return errors.Wrapf(err, "saving position %s", p.ID)
	}
	return nil
}
