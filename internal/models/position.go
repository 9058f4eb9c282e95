package models

import "time"

// PositionStatus is the lifecycle state of a ledger position.
type PositionStatus string

const (
	PositionOpen         PositionStatus = "OPEN"
	PositionClosedStop   PositionStatus = "CLOSED_STOP"
	PositionClosedTarget PositionStatus = "CLOSED_TARGET"
	PositionClosedTime   PositionStatus = "CLOSED_TIME"
	PositionClosedManual PositionStatus = "CLOSED_MANUAL"
)

// IsClosed reports whether s is a terminal status.
func (s PositionStatus) IsClosed() bool {
	switch s {
	case PositionClosedStop, PositionClosedTarget, PositionClosedTime, PositionClosedManual:
		return true
	}
	return false
}

// Position is a long position tracked by the ledger.
type Position struct {
	ID          string         `json:"id" yaml:"id"`
	Instrument  string         `json:"instrument" yaml:"instrument"`
	EntryDate   time.Time      `json:"entry_date" yaml:"entry_date"`
	EntryPrice  float64        `json:"entry_price" yaml:"entry_price"`
	StopPrice   float64        `json:"stop_price" yaml:"stop_price"`
	TargetPrice float64        `json:"target_price" yaml:"target_price"`
	MaxHoldDate time.Time      `json:"max_hold_date" yaml:"max_hold_date"`
	Shares      int64          `json:"shares" yaml:"shares"`
	Score       int            `json:"score,omitempty" yaml:"score,omitempty"`
	Patterns    []PatternKind  `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Status      PositionStatus `json:"status" yaml:"status"`
	ExitDate    *time.Time     `json:"exit_date,omitempty" yaml:"exit_date,omitempty"`
	ExitPrice   *float64       `json:"exit_price,omitempty" yaml:"exit_price,omitempty"`
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// ClosedTrade is the realized record of a closed position.
type ClosedTrade struct {
	PositionID   string         `json:"position_id" yaml:"position_id"`
	Instrument   string         `json:"instrument" yaml:"instrument"`
	EntryDate    time.Time      `json:"entry_date" yaml:"entry_date"`
	ExitDate     time.Time      `json:"exit_date" yaml:"exit_date"`
	EntryPrice   float64        `json:"entry_price" yaml:"entry_price"`
	ExitPrice    float64        `json:"exit_price" yaml:"exit_price"`
	Shares       int64          `json:"shares" yaml:"shares"`
	Status       PositionStatus `json:"status" yaml:"status"`
	ReturnPct    float64        `json:"return_pct" yaml:"return_pct"`
	ReturnAmount float64        `json:"return_amount" yaml:"return_amount"`
	DaysHeld     int            `json:"days_held" yaml:"days_held"`
}

// TradeFromPosition builds the closed-trade record for a closed position.
// It returns false when the position is still open.
func TradeFromPosition(p *Position) (ClosedTrade, bool) {
	if !p.Status.IsClosed() || p.ExitDate == nil || p.ExitPrice == nil {
		return ClosedTrade{}, false
	}
	exit := *p.ExitPrice
	ret := 0.0
	if p.EntryPrice > 0 {
		ret = (exit - p.EntryPrice) / p.EntryPrice * 100
	}
	return ClosedTrade{
		PositionID:   p.ID,
		Instrument:   p.Instrument,
		EntryDate:    p.EntryDate,
		ExitDate:     *p.ExitDate,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    exit,
		Shares:       p.Shares,
		Status:       p.Status,
		ReturnPct:    ret,
		ReturnAmount: (exit - p.EntryPrice) * float64(p.Shares),
		DaysHeld:     int(p.ExitDate.Sub(p.EntryDate).Hours() / 24),
	}, true
}
