// Package engine converts trading signals into target-position deltas,
// tracks average entry price through partial fills and position flips,
// enforces the stop-loss policy, and samples the equity curve.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// PositionInfo is a snapshot of one pair's position taken when an order is
// submitted: the pre-order quantity and cost basis, the quantity the ledger
// is trying to reach, and the in-flight order. Derived state (current
// quantity, average price) is computed lazily from the order's fill state.
type PositionInfo struct {
	Pair            domain.Pair
	Initial         decimal.Decimal
	InitialAvgPrice decimal.Decimal
	Target          decimal.Decimal
	Order           *domain.OrderState
}

// Current returns the quantity implied by the order-fill ledger: the
// pre-order quantity plus the signed fill delta.
func (p *PositionInfo) Current() decimal.Decimal {
	return p.Initial.Add(p.Order.SignedFillDelta())
}

// AvgPrice returns the volume-weighted cost basis of the current quantity.
func (p *PositionInfo) AvgPrice() decimal.Decimal {
	return RecomputeAvgPrice(p.Initial, p.InitialAvgPrice, p.Target, Fill{
		Operation: p.Order.Operation,
		Amount:    p.Order.AmountFilled,
		Price:     p.Order.FillPrice,
	})
}

// OrderOpen reports whether the in-flight order is still open.
func (p *PositionInfo) OrderOpen() bool {
	return p.Order.Open
}

// TargetReached reports whether the current quantity equals the target.
func (p *PositionInfo) TargetReached() bool {
	return p.Current().Equal(p.Target)
}

// UnrealizedPnLPct returns the unrealized profit of the position as a
// percentage of its cost, valued at the exit price: bid for a long, ask for
// a short. Defined as 0 when quantity or average price is 0.
func (p *PositionInfo) UnrealizedPnLPct(bid, ask decimal.Decimal) decimal.Decimal {
	current := p.Current()
	avgPrice := p.AvgPrice()
	if current.IsZero() || avgPrice.IsZero() {
		return decimal.Zero
	}

	exitPrice := ask
	if current.Sign() > 0 {
		exitPrice = bid
	}
	pnl := exitPrice.Sub(avgPrice).Mul(current)
	return pnl.Div(avgPrice.Mul(current).Abs()).Mul(hundred)
}

// Fill is the fill state of an order: side, filled amount, and
// volume-weighted fill price (zero while nothing filled).
type Fill struct {
	Operation domain.OrderOperation
	Amount    decimal.Decimal
	Price     decimal.Decimal
}

// RecomputeAvgPrice derives the average entry price of a position from its
// pre-order state and the fill applied to it:
//
//   - prior quantity 0: the fill price becomes the basis;
//   - prior and target opposite-signed and the post-fill quantity already on
//     the target's side: the old basis is discarded, the fill price becomes
//     the basis of the fresh position;
//   - same side, reducing toward zero: realizing PnL does not move the
//     basis, it stays at the prior average;
//   - same side, increasing: volume-weighted blend of the prior basis and
//     the fill.
//
// The recomputation never reads price state for a zero quantity.
func RecomputeAvgPrice(initial, initialAvgPrice, target decimal.Decimal, fill Fill) decimal.Decimal {
	if initial.IsZero() {
		return fill.Price
	}

	current := initial
	if fill.Operation == domain.OperationBuy {
		current = current.Add(fill.Amount)
	} else {
		current = current.Sub(fill.Amount)
	}

	// Flipped from long to short or vice versa, already on the target side.
	if initial.Mul(target).Sign() < 0 && current.Mul(target).Sign() > 0 {
		return fill.Price
	}

	// Rebalancing on the same side.
	if initial.Mul(target).Sign() > 0 {
		reducing := (target.Sign() > 0 && fill.Operation == domain.OperationSell) ||
			(target.Sign() < 0 && fill.Operation == domain.OperationBuy)
		if reducing {
			return initialAvgPrice
		}
		weighted := initial.Abs().Mul(initialAvgPrice).Add(fill.Amount.Mul(fill.Price))
		return weighted.Div(initial.Abs().Add(fill.Amount))
	}

	return fill.Price
}
