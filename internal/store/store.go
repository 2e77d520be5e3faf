// Package store provides historical bar storage backends and the CSV
// loader used to feed backtests.
package store

import (
	"context"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for the given timeframe.
	WriteBars(ctx context.Context, timeframe string, bars []domain.Bar) error

	// ReadBars returns all bars for the given pair and timeframe in
	// ascending timestamp order.
	ReadBars(ctx context.Context, pair domain.Pair, timeframe string) ([]domain.Bar, error)

	// ListPairs returns all distinct pairs with data in the given timeframe.
	ListPairs(ctx context.Context, timeframe string) ([]domain.Pair, error)
}
