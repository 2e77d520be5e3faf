// Package exchange defines the Exchange interface consumed by the position
// engine and provides an in-memory simulator implementation for backtesting.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// Exchange abstracts the order, market-data, and balance operations the
// position engine needs from a (simulated) exchange.
type Exchange interface {
	// CreateMarketOrder submits a market order and returns its initial state.
	// autoBorrow allows the order to take a balance negative; autoRepay
	// settles outstanding borrows with the proceeds.
	CreateMarketOrder(
		ctx context.Context,
		op domain.OrderOperation,
		pair domain.Pair,
		amount decimal.Decimal,
		autoBorrow, autoRepay bool,
	) (*domain.OrderState, error)

	// CancelOrder cancels an open order by ID.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrderInfo returns the current state of an order by ID.
	GetOrderInfo(ctx context.Context, orderID string) (*domain.OrderState, error)

	// GetOpenOrders returns all open orders for the pair.
	GetOpenOrders(ctx context.Context, pair domain.Pair) ([]*domain.OrderState, error)

	// GetBidAsk returns the current bid and ask prices for the pair.
	GetBidAsk(ctx context.Context, pair domain.Pair) (bid, ask decimal.Decimal, err error)

	// GetPairInfo returns instrument precision for the pair.
	GetPairInfo(ctx context.Context, pair domain.Pair) (*domain.PairInfo, error)

	// GetBalances returns the available balance per currency.
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}
