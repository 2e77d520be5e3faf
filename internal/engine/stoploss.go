package engine

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// OnBar advances the manager by one bar: the stop-loss check runs at most
// once per distinct bar timestamp, then total portfolio value is sampled
// onto the equity curve with the bar close as the valuation price.
func (m *PositionManager) OnBar(ctx context.Context, bar domain.Bar) {
	m.log.Debug("bar", "pair", bar.Pair.String(), "close", bar.Close)

	if m.lastCheckLoss.IsZero() || m.lastCheckLoss.Before(bar.Timestamp) {
		m.lastCheckLoss = bar.Timestamp
		if err := m.CheckLoss(ctx); err != nil {
			m.log.Warn("stop loss check failed", "err", err)
		}
	}

	m.lastClose[bar.Pair] = bar.Close
	if err := m.recordEquity(ctx, bar); err != nil {
		m.log.Warn("equity sample failed", "err", err)
	}
}

// CheckLoss evaluates unrealized PnL for every position with nonzero
// quantity and forces a switch to neutral when the stop-loss threshold is
// breached. Refreshed order state and bid/ask for all pairs are fetched as
// one concurrent batch, zipped positionally against the pair list.
func (m *PositionManager) CheckLoss(ctx context.Context) error {
	var pairs []domain.Pair
	for pair, pos := range m.positions {
		if !pos.Current().IsZero() {
			pairs = append(pairs, pair)
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	type quote struct {
		bid, ask decimal.Decimal
	}
	var (
		wg        sync.WaitGroup
		refreshed = make([]*PositionInfo, len(pairs))
		quotes    = make([]quote, len(pairs))
		errs      = make([]error, 2*len(pairs))
	)
	for i, pair := range pairs {
		wg.Add(2)
		go func(i int, pair domain.Pair) {
			defer wg.Done()
			refreshed[i], errs[i] = m.refreshPosition(ctx, pair)
		}(i, pair)
		go func(i int, pair domain.Pair) {
			defer wg.Done()
			var err error
			quotes[i].bid, quotes[i].ask, err = m.exch.GetBidAsk(ctx, pair)
			errs[len(pairs)+i] = err
		}(i, pair)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	for i, pos := range refreshed {
		pnlPct := pos.UnrealizedPnLPct(quotes[i].bid, quotes[i].ask)
		m.log.Info("position",
			"pair", pos.Pair.String(),
			"current", pos.Current(),
			"target", pos.Target,
			"avg_price", pos.AvgPrice(),
			"pnl_pct", pnlPct,
			"order_open", pos.OrderOpen(),
		)
		if pnlPct.LessThanOrEqual(m.cfg.StopLossPct.Neg()) {
			m.log.Info("stop loss", "pair", pos.Pair.String(), "pnl_pct", pnlPct)
			// Force past the no-op guard: a stale order may still be open
			// even when the nominal target is already neutral.
			if err := m.SwitchPosition(ctx, pos.Pair, domain.PositionNeutral, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordEquity samples total portfolio value: the accounting currency at
// face value plus every other held balance priced at its pair's latest
// close, falling back to the event bar's close.
func (m *PositionManager) recordEquity(ctx context.Context, bar domain.Bar) error {
	balances, err := m.exch.GetBalances(ctx)
	if err != nil {
		return err
	}

	total := decimal.Zero
	for currency, amount := range balances {
		if currency == m.cfg.QuoteSymbol {
			total = total.Add(amount)
			continue
		}
		price, ok := m.lastClose[domain.NewPair(currency, m.cfg.QuoteSymbol)]
		if !ok {
			price = bar.Close
		}
		total = total.Add(amount.Mul(price))
	}
	m.curve.Add(bar.Timestamp, total)
	return nil
}
