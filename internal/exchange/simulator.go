package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// Compile-time interface check.
var _ Exchange = (*Simulator)(nil)

var two = decimal.NewFromInt(2)

// Simulator implements Exchange in memory for backtesting. Market orders
// rest open until the next processed bar and then fill fully at that bar's
// open, adjusted by half the configured spread, with fees charged in the
// quote currency. Bid and ask quotes derive from the last bar's close.
//
// All methods are safe for concurrent use, so batched queries may be issued
// from multiple goroutines and joined.
type Simulator struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	pairs    map[domain.Pair]domain.PairInfo
	orders   map[string]*simOrder
	open     map[domain.Pair][]string
	last     map[domain.Pair]domain.Bar

	spreadPct decimal.Decimal // proportional bid/ask spread, e.g. 0.001
	feePct    decimal.Decimal // taker fee fraction, e.g. 0.0025
}

type simOrder struct {
	state      domain.OrderState
	autoBorrow bool
	autoRepay  bool
}

// NewSimulator creates a Simulator holding the given initial balances.
// spreadPct and feePct are fractions (0.001 means 0.1%).
func NewSimulator(initialBalances map[string]decimal.Decimal, spreadPct, feePct decimal.Decimal) *Simulator {
	balances := make(map[string]decimal.Decimal, len(initialBalances))
	for currency, amount := range initialBalances {
		balances[currency] = amount
	}
	return &Simulator{
		balances:  balances,
		pairs:     make(map[domain.Pair]domain.PairInfo),
		orders:    make(map[string]*simOrder),
		open:      make(map[domain.Pair][]string),
		last:      make(map[domain.Pair]domain.Bar),
		spreadPct: spreadPct,
		feePct:    feePct,
	}
}

// RegisterPair makes a pair tradable with the given precision.
func (s *Simulator) RegisterPair(pair domain.Pair, info domain.PairInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[pair] = info
}

// ProcessBar advances the simulation to the given bar: open orders for the
// bar's pair fill at the bar open price and the bar becomes the quote source
// for subsequent bid/ask queries.
func (s *Simulator) ProcessBar(_ context.Context, bar domain.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pairs[bar.Pair]; !ok {
		return fmt.Errorf("exchange: pair %s not registered", bar.Pair)
	}

	for _, id := range s.open[bar.Pair] {
		s.fill(s.orders[id], bar)
	}
	s.open[bar.Pair] = nil
	s.last[bar.Pair] = bar

	return nil
}

// fill executes an open order completely at the bar's open price. Buys pay
// half the spread above the open, sells receive half the spread below it.
func (s *Simulator) fill(o *simOrder, bar domain.Bar) {
	half := s.spreadPct.Div(two)
	var price decimal.Decimal
	if o.state.Operation == domain.OperationBuy {
		price = bar.Open.Mul(decimal.NewFromInt(1).Add(half))
	} else {
		price = bar.Open.Mul(decimal.NewFromInt(1).Sub(half))
	}

	amount := o.state.Amount
	notional := price.Mul(amount)
	fee := notional.Mul(s.feePct)

	base, quote := o.state.Pair.Base, o.state.Pair.Quote
	if o.state.Operation == domain.OperationBuy {
		s.balances[base] = s.balances[base].Add(amount)
		s.balances[quote] = s.balances[quote].Sub(notional).Sub(fee)
	} else {
		s.balances[base] = s.balances[base].Sub(amount)
		s.balances[quote] = s.balances[quote].Add(notional).Sub(fee)
	}

	o.state.AmountFilled = amount
	o.state.FillPrice = price
	o.state.Open = false
}

// CreateMarketOrder submits a market order. Without autoBorrow the order is
// rejected when the estimated cost exceeds the available balance.
func (s *Simulator) CreateMarketOrder(
	_ context.Context,
	op domain.OrderOperation,
	pair domain.Pair,
	amount decimal.Decimal,
	autoBorrow, autoRepay bool,
) (*domain.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pairs[pair]; !ok {
		return nil, fmt.Errorf("exchange: pair %s not registered", pair)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("exchange: order amount %s must be positive", amount)
	}

	if !autoBorrow {
		if err := s.checkBalance(op, pair, amount); err != nil {
			return nil, err
		}
	}

	o := &simOrder{
		state: domain.OrderState{
			ID:        uuid.NewString(),
			Operation: op,
			Pair:      pair,
			Amount:    amount,
			Open:      true,
		},
		autoBorrow: autoBorrow,
		autoRepay:  autoRepay,
	}
	s.orders[o.state.ID] = o
	s.open[pair] = append(s.open[pair], o.state.ID)

	state := o.state
	return &state, nil
}

// checkBalance estimates order cost at the last close and rejects the order
// if the available balance cannot cover it.
func (s *Simulator) checkBalance(op domain.OrderOperation, pair domain.Pair, amount decimal.Decimal) error {
	if op == domain.OperationSell {
		if s.balances[pair.Base].LessThan(amount) {
			return fmt.Errorf("exchange: insufficient %s balance to sell %s", pair.Base, amount)
		}
		return nil
	}

	last, ok := s.last[pair]
	if !ok {
		return fmt.Errorf("exchange: no market data for %s", pair)
	}
	cost := last.Close.Mul(amount)
	if s.balances[pair.Quote].LessThan(cost) {
		return fmt.Errorf("exchange: insufficient %s balance to buy %s %s", pair.Quote, amount, pair.Base)
	}
	return nil
}

// CancelOrder cancels an open order. Whatever filled before cancellation is
// kept; an order that already completed cannot be cancelled.
func (s *Simulator) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("exchange: unknown order %s", orderID)
	}
	if !o.state.Open {
		return fmt.Errorf("exchange: order %s is not open", orderID)
	}

	o.state.Open = false
	ids := s.open[o.state.Pair]
	for i, id := range ids {
		if id == orderID {
			s.open[o.state.Pair] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// GetOrderInfo returns a copy of the order's current state.
func (s *Simulator) GetOrderInfo(_ context.Context, orderID string) (*domain.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("exchange: unknown order %s", orderID)
	}
	state := o.state
	return &state, nil
}

// GetOpenOrders returns copies of all open orders for the pair.
func (s *Simulator) GetOpenOrders(_ context.Context, pair domain.Pair) ([]*domain.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []*domain.OrderState
	for _, id := range s.open[pair] {
		state := s.orders[id].state
		orders = append(orders, &state)
	}
	return orders, nil
}

// GetBidAsk derives bid and ask from the last bar close, half the spread on
// each side.
func (s *Simulator) GetBidAsk(_ context.Context, pair domain.Pair) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.last[pair]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("exchange: no market data for %s", pair)
	}
	half := s.spreadPct.Div(two)
	bid := last.Close.Mul(decimal.NewFromInt(1).Sub(half))
	ask := last.Close.Mul(decimal.NewFromInt(1).Add(half))
	return bid, ask, nil
}

// GetPairInfo returns instrument precision for a registered pair.
func (s *Simulator) GetPairInfo(_ context.Context, pair domain.Pair) (*domain.PairInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.pairs[pair]
	if !ok {
		return nil, fmt.Errorf("exchange: pair %s not registered", pair)
	}
	return &info, nil
}

// GetBalances returns a copy of the per-currency available balances.
func (s *Simulator) GetBalances(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balances := make(map[string]decimal.Decimal, len(s.balances))
	for currency, amount := range s.balances {
		balances[currency] = amount
	}
	return balances, nil
}
