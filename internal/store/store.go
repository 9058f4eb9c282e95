// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"pivotscan/internal/models"
)

// BarStore persists daily bars per instrument.
type BarStore interface {
	AppendBars(ctx context.Context, symbol string, bars []models.Bar) (int, error)
	GetBars(ctx context.Context, symbol string, filter DateRange) ([]models.Bar, error)
	LastBarDate(ctx context.Context, symbol string) (time.Time, bool, error)
	Symbols(ctx context.Context) ([]string, error)
}

// PositionStore persists ledger positions.
type PositionStore interface {
	SavePosition(ctx context.Context, p *models.Position) error
	ListPositions(ctx context.Context) ([]models.Position, error)
}

// DataStore combines every persisted concern.
type DataStore interface {
	BarStore
	PositionStore
	Close() error
}

// DateRange bounds a bar query. Zero bounds are open.
type DateRange struct {
	Start time.Time
	End   time.Time
}
