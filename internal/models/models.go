// Package models provides domain models for the scanner and position ledger.
package models

import (
	"time"
)

// DateLayout is the calendar date format used in files, flags and the database.
const DateLayout = "2006-01-02"

// Bar represents one daily OHLCV session for an instrument.
type Bar struct {
	Date   time.Time `json:"date" yaml:"date"`
	Open   float64   `json:"open" yaml:"open"`
	High   float64   `json:"high" yaml:"high"`
	Low    float64   `json:"low" yaml:"low"`
	Close  float64   `json:"close" yaml:"close"`
	Volume int64     `json:"volume" yaml:"volume"`
}

// IsUp reports whether the session closed above its open.
func (b Bar) IsUp() bool {
	return b.Close > b.Open
}

// Valid reports whether the bar is structurally sound.
func (b Bar) Valid() bool {
	if b.Date.IsZero() {
		return false
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	if b.High < b.Low || b.Volume < 0 {
		return false
	}
	return true
}

// SessionDate truncates t to a UTC calendar date.
func SessionDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD session date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return SessionDate(t), nil
}
