// Package store provides bar data persistence for backtests.
//
// The core engine never fetches data itself: callers materialize bar
// sequences through a BarStore before a run starts.
package store

import (
	"context"
	"time"

	"algame/internal/models"
)

// BarStore defines the interface for bar persistence.
type BarStore interface {
	// SaveBars upserts bars for an instrument and timeframe.
	SaveBars(ctx context.Context, instrument, timeframe string, bars []models.Bar) error

	// GetBars returns bars ordered by timestamp within [from, to]. Zero
	// times mean unbounded.
	GetBars(ctx context.Context, instrument, timeframe string, from, to time.Time) ([]models.Bar, error)

	// ListInstruments returns the distinct instruments stored.
	ListInstruments(ctx context.Context) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
