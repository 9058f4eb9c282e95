// Package series provides the in-memory, append-only bar store and the
// rolling statistics derived from it.
package series

import (
	"sort"
	"sync"
	"time"

	"pivotscan/internal/errors"
	"pivotscan/internal/models"
)

type instrument struct {
	bars   []models.Bar
	sma    map[int]*rolling
	avgVol map[int]*rolling
}

// Store holds daily bars per instrument in strictly increasing date order.
// It is safe for concurrent readers with a single writer.
type Store struct {
	mu     sync.RWMutex
	series map[string]*instrument
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{series: make(map[string]*instrument)}
}

// Append adds bar to the end of symbol's series. The bar date must be
// strictly after the last stored date.
func (s *Store) Append(symbol string, bar models.Bar) error {
	bar.Date = models.SessionDate(bar.Date)
	if !bar.Valid() {
		return errors.NewDataError("bar", symbol, "rejected "+bar.Date.Format(models.DateLayout), errors.ErrInvalidBar)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.series[symbol]
	if !ok {
		inst = &instrument{
			sma:    make(map[int]*rolling),
			avgVol: make(map[int]*rolling),
		}
		s.series[symbol] = inst
	}
	if n := len(inst.bars); n > 0 && !bar.Date.After(inst.bars[n-1].Date) {
		return errors.NewDataError("bar", symbol,
			bar.Date.Format(models.DateLayout)+" not after "+inst.bars[n-1].Date.Format(models.DateLayout),
			errors.ErrOutOfOrderBar)
	}

	inst.bars = append(inst.bars, bar)
	for _, r := range inst.sma {
		r.push(bar.Close)
	}
	for _, r := range inst.avgVol {
		r.push(float64(bar.Volume))
	}
	return nil
}

// AppendAll appends bars in order, stopping at the first error.
func (s *Store) AppendAll(symbol string, bars []models.Bar) error {
	for _, b := range bars {
		if err := s.Append(symbol, b); err != nil {
			return err
		}
	}
	return nil
}

// Instruments returns all known symbols in sorted order.
func (s *Store) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of bars stored for symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inst, ok := s.series[symbol]; ok {
		return len(inst.bars)
	}
	return 0
}

// Last returns the most recent bar for symbol.
func (s *Store) Last(symbol string) (models.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.series[symbol]
	if !ok || len(inst.bars) == 0 {
		return models.Bar{}, false
	}
	return inst.bars[len(inst.bars)-1], true
}

// BarAt returns the bar dated exactly date.
func (s *Store) BarAt(symbol string, date time.Time) (models.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.series[symbol]
	if !ok {
		return models.Bar{}, false
	}
	date = models.SessionDate(date)
	idx := inst.indexAtOrBefore(date)
	if idx < 0 || !inst.bars[idx].Date.Equal(date) {
		return models.Bar{}, false
	}
	return inst.bars[idx], true
}

// Range returns a copy of the bars dated after from and at or before to.
func (s *Store) Range(symbol string, from, to time.Time) []models.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.series[symbol]
	if !ok {
		return nil
	}
	start := inst.indexAtOrBefore(models.SessionDate(from)) + 1
	end := inst.indexAtOrBefore(models.SessionDate(to)) + 1
	if start >= end {
		return nil
	}
	out := make([]models.Bar, end-start)
	copy(out, inst.bars[start:end])
	return out
}

// Window returns exactly length bars of symbol ending at the last bar dated
// at or before end.
func (s *Store) Window(symbol string, end time.Time, length int) (*Window, error) {
	if length < 1 {
		return nil, errors.NewValidationError("length", length, "must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.series[symbol]
	if !ok {
		return nil, errors.NewDataError("window", symbol, "no bars appended", errors.ErrUnknownInstrument)
	}
	idx := inst.indexAtOrBefore(models.SessionDate(end))
	if idx+1 < length {
		return nil, errors.NewDataError("window", symbol, "fewer bars than requested", errors.ErrInsufficientHistory)
	}
	return NewWindow(symbol, inst.bars[idx+1-length:idx+1]), nil
}

// WindowUpTo returns the longest window of at most maxLength bars ending at
// the last bar dated at or before end.
func (s *Store) WindowUpTo(symbol string, end time.Time, maxLength int) (*Window, error) {
	if maxLength < 1 {
		return nil, errors.NewValidationError("maxLength", maxLength, "must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.series[symbol]
	if !ok {
		return nil, errors.NewDataError("window", symbol, "no bars appended", errors.ErrUnknownInstrument)
	}
	idx := inst.indexAtOrBefore(models.SessionDate(end))
	if idx < 0 {
		return nil, errors.NewDataError("window", symbol, "no bars at or before end", errors.ErrInsufficientHistory)
	}
	start := idx + 1 - maxLength
	if start < 0 {
		start = 0
	}
	return NewWindow(symbol, inst.bars[start:idx+1]), nil
}

// SMA returns the period-bar simple moving average of close ending at the
// last bar dated at or before end.
func (s *Store) SMA(symbol string, period int, end time.Time) (float64, error) {
	return s.stat(symbol, period, end, false)
}

// AverageVolume returns the period-bar average volume ending at the last bar
// dated at or before end.
func (s *Store) AverageVolume(symbol string, period int, end time.Time) (float64, error) {
	return s.stat(symbol, period, end, true)
}

func (s *Store) stat(symbol string, period int, end time.Time, volume bool) (float64, error) {
	if period < 1 {
		return 0, errors.NewValidationError("period", period, "must be positive")
	}
	end = models.SessionDate(end)

	s.mu.RLock()
	inst, ok := s.series[symbol]
	if !ok {
		s.mu.RUnlock()
		return 0, errors.NewDataError("stat", symbol, "no bars appended", errors.ErrUnknownInstrument)
	}
	r := inst.registry(volume)[period]
	if r != nil {
		v, found := r.at(inst.indexAtOrBefore(end))
		s.mu.RUnlock()
		return statResult(symbol, v, found)
	}
	s.mu.RUnlock()

	// First request for this period: register and back-fill under the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()
	reg := inst.registry(volume)
	if r = reg[period]; r == nil {
		r = newRolling(period)
		for _, b := range inst.bars {
			if volume {
				r.push(float64(b.Volume))
			} else {
				r.push(b.Close)
			}
		}
		reg[period] = r
	}
	v, found := r.at(inst.indexAtOrBefore(end))
	return statResult(symbol, v, found)
}

func statResult(symbol string, v float64, found bool) (float64, error) {
	if !found {
		return 0, errors.NewDataError("stat", symbol, "period exceeds available bars", errors.ErrInsufficientHistory)
	}
	return v, nil
}

func (inst *instrument) registry(volume bool) map[int]*rolling {
	if volume {
		return inst.avgVol
	}
	return inst.sma
}

// indexAtOrBefore returns the index of the last bar dated at or before
// date, or -1.
func (inst *instrument) indexAtOrBefore(date time.Time) int {
	return sort.Search(len(inst.bars), func(i int) bool {
		return inst.bars[i].Date.After(date)
	}) - 1
}
