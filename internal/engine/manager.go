package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/analytics"
	"github.com/aspis-finance/aspis-backtesting/internal/domain"
	"github.com/aspis-finance/aspis-backtesting/internal/exchange"
)

// Config holds the portfolio parameters of a PositionManager.
type Config struct {
	// PositionAmount is the fixed notional size of a position, expressed in
	// QuoteSymbol units.
	PositionAmount decimal.Decimal

	// QuoteSymbol is the portfolio's accounting currency.
	QuoteSymbol string

	// StopLossPct forces liquidation when a position's unrealized PnL drops
	// to -StopLossPct percent.
	StopLossPct decimal.Decimal

	// BorrowingDisabled folds short signals into neutral.
	BorrowingDisabled bool
}

// PositionManager owns the position ledger: it responds to trading signals
// by switching positions, checks the stop-loss once per bar timestamp, and
// samples total portfolio value on every bar. It is driven by a single
// logical thread of control; only batched exchange queries fan out.
type PositionManager struct {
	exch exchange.Exchange
	cfg  Config
	log  *slog.Logger

	positions     map[domain.Pair]*PositionInfo
	lastCheckLoss time.Time
	lastClose     map[domain.Pair]decimal.Decimal
	curve         *analytics.EquityCurve
}

// NewPositionManager creates a PositionManager trading through exch.
func NewPositionManager(exch exchange.Exchange, cfg Config, log *slog.Logger) (*PositionManager, error) {
	if cfg.PositionAmount.Sign() <= 0 {
		return nil, fmt.Errorf("engine: position amount %s must be positive", cfg.PositionAmount)
	}
	if cfg.StopLossPct.Sign() <= 0 {
		return nil, fmt.Errorf("engine: stop loss %s must be positive", cfg.StopLossPct)
	}
	if cfg.QuoteSymbol == "" {
		return nil, fmt.Errorf("engine: quote symbol must not be empty")
	}
	return &PositionManager{
		exch:      exch,
		cfg:       cfg,
		log:       log,
		positions: make(map[domain.Pair]*PositionInfo),
		lastClose: make(map[domain.Pair]decimal.Decimal),
		curve:     analytics.NewEquityCurve(),
	}, nil
}

// Equity returns the equity curve sampled so far.
func (m *PositionManager) Equity() *analytics.EquityCurve {
	return m.curve
}

// Position returns the ledger's snapshot for the pair, or nil.
func (m *PositionManager) Position(pair domain.Pair) *PositionInfo {
	return m.positions[pair]
}

// OnSignal handles one trading-position decision. Errors are logged and
// swallowed so one bad signal does not halt the run.
func (m *PositionManager) OnSignal(ctx context.Context, sig domain.Signal) {
	target := sig.Position
	if m.cfg.BorrowingDisabled && target == domain.PositionShort {
		target = domain.PositionNeutral
	}
	m.log.Info("trading signal", "pair", sig.Pair.String(), "target", target)

	if err := m.SwitchPosition(ctx, sig.Pair, target, false); err != nil {
		m.log.Error("signal handling failed",
			"pair", sig.Pair.String(), "target", target, "err", err)
	}
}

// SwitchPosition moves the pair's position to the given qualitative target.
// Unless force is set, the request is ignored when the ledger is already at
// that target with no quantity left to fill.
func (m *PositionManager) SwitchPosition(ctx context.Context, pair domain.Pair, target domain.TargetPosition, force bool) error {
	pos, err := m.refreshPosition(ctx, pair)
	if err != nil {
		return err
	}

	if !force {
		if pos == nil && target == domain.PositionNeutral {
			return nil
		}
		if pos != nil && domain.PositionFromQuantity(pos.Target) == target && pos.TargetReached() {
			return nil
		}
	}

	// Cancel the stale order and observe its final fill state before doing
	// anything else for this pair. Strict sequence, never parallel.
	if pos != nil && pos.OrderOpen() {
		if err := m.exch.CancelOrder(ctx, pos.Order.ID); err != nil {
			return fmt.Errorf("cancelling order %s: %w", pos.Order.ID, err)
		}
		refreshed, err := m.exch.GetOrderInfo(ctx, pos.Order.ID)
		if err != nil {
			return fmt.Errorf("refreshing order %s: %w", pos.Order.ID, err)
		}
		pos.Order = refreshed
	}

	var (
		wg       sync.WaitGroup
		bid, ask decimal.Decimal
		info     *domain.PairInfo
		bidAskErr, infoErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		bid, ask, bidAskErr = m.exch.GetBidAsk(ctx, pair)
	}()
	go func() {
		defer wg.Done()
		info, infoErr = m.exch.GetPairInfo(ctx, pair)
	}()
	wg.Wait()
	if bidAskErr != nil {
		return fmt.Errorf("fetching bid/ask for %s: %w", pair, bidAskErr)
	}
	if infoErr != nil {
		return fmt.Errorf("fetching pair info for %s: %w", pair, infoErr)
	}

	targetQty, err := m.targetQuantity(ctx, pair, target, bid, ask, info)
	if err != nil {
		return err
	}

	current := decimal.Zero
	if pos != nil {
		current = pos.Current()
	}
	delta := targetQty.Sub(current)
	m.log.Info("switch position",
		"pair", pair.String(), "current", current, "target", targetQty, "delta", delta)
	if delta.IsZero() {
		return nil
	}

	orderSize := delta.Abs()
	operation := domain.OperationSell
	if delta.Sign() > 0 {
		operation = domain.OperationBuy
	}
	m.log.Info("creating market order",
		"operation", operation, "pair", pair.String(), "size", orderSize)
	created, err := m.exch.CreateMarketOrder(ctx, operation, pair, orderSize, true, true)
	if err != nil {
		return fmt.Errorf("creating market order for %s: %w", pair, err)
	}
	order, err := m.exch.GetOrderInfo(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("refreshing order %s: %w", created.ID, err)
	}

	initialAvgPrice := decimal.Zero
	if pos != nil {
		initialAvgPrice = pos.AvgPrice()
	}
	m.positions[pair] = &PositionInfo{
		Pair:            pair,
		Initial:         current,
		InitialAvgPrice: initialAvgPrice,
		Target:          targetQty,
		Order:           order,
	}
	return nil
}

// targetQuantity translates a qualitative target into a signed base-asset
// quantity, truncated toward zero to the instrument's base precision. When
// the pair's quote currency differs from the accounting currency, the
// sizing amount is converted through the base/accounting pair's mid price.
func (m *PositionManager) targetQuantity(
	ctx context.Context,
	pair domain.Pair,
	target domain.TargetPosition,
	bid, ask decimal.Decimal,
	info *domain.PairInfo,
) (decimal.Decimal, error) {
	if target == domain.PositionNeutral {
		return decimal.Zero, nil
	}

	mid := bid.Add(ask).Div(two)
	if pair.Quote != m.cfg.QuoteSymbol {
		convBid, convAsk, err := m.exch.GetBidAsk(ctx, domain.NewPair(pair.Base, m.cfg.QuoteSymbol))
		if err != nil {
			return decimal.Zero, fmt.Errorf("fetching conversion bid/ask for %s/%s: %w",
				pair.Base, m.cfg.QuoteSymbol, err)
		}
		mid = convBid.Add(convAsk).Div(two)
	}

	qty := m.cfg.PositionAmount.Div(mid)
	if target == domain.PositionShort {
		qty = qty.Neg()
	}
	return qty.Truncate(info.BasePrecision), nil
}

// CancelOpenOrders cancels every open order for the pair.
func (m *PositionManager) CancelOpenOrders(ctx context.Context, pair domain.Pair) error {
	orders, err := m.exch.GetOpenOrders(ctx, pair)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := m.exch.CancelOrder(ctx, o.ID); err != nil {
			return err
		}
	}
	return nil
}

// refreshPosition returns the ledger's snapshot for the pair with the order
// fill state re-read from the exchange when the order is still open. Never
// returns stale fill state.
func (m *PositionManager) refreshPosition(ctx context.Context, pair domain.Pair) (*PositionInfo, error) {
	pos := m.positions[pair]
	if pos == nil || !pos.OrderOpen() {
		return pos, nil
	}
	order, err := m.exch.GetOrderInfo(ctx, pos.Order.ID)
	if err != nil {
		return nil, fmt.Errorf("refreshing order %s: %w", pos.Order.ID, err)
	}
	pos.Order = order
	return pos, nil
}
