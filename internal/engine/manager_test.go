package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
	"github.com/aspis-finance/aspis-backtesting/internal/exchange"
)

// stubExchange is a scriptable Exchange for manager tests. Orders fill
// immediately and fully at the pair's mid price unless holdFills is set.
type stubExchange struct {
	mu         sync.Mutex
	bidAsk     map[domain.Pair][2]decimal.Decimal
	pairInfo   map[domain.Pair]domain.PairInfo
	balances   map[string]decimal.Decimal
	orders     map[string]*domain.OrderState
	created    []string
	cancelled  []string
	holdFills  bool
	createErr  error
	bidAskHits int
	seq        int
}

var _ exchange.Exchange = (*stubExchange)(nil)

func newStubExchange() *stubExchange {
	return &stubExchange{
		bidAsk:   make(map[domain.Pair][2]decimal.Decimal),
		pairInfo: make(map[domain.Pair]domain.PairInfo),
		balances: make(map[string]decimal.Decimal),
		orders:   make(map[string]*domain.OrderState),
	}
}

func (s *stubExchange) setQuote(pair domain.Pair, bid, ask string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bidAsk[pair] = [2]decimal.Decimal{dec(bid), dec(ask)}
	if _, ok := s.pairInfo[pair]; !ok {
		s.pairInfo[pair] = domain.PairInfo{BasePrecision: 8, QuotePrecision: 2}
	}
}

func (s *stubExchange) CreateMarketOrder(
	_ context.Context,
	op domain.OrderOperation,
	pair domain.Pair,
	amount decimal.Decimal,
	_, _ bool,
) (*domain.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}

	s.seq++
	o := &domain.OrderState{
		ID:        fmt.Sprintf("order-%d", s.seq),
		Operation: op,
		Pair:      pair,
		Amount:    amount,
		Open:      true,
	}
	if !s.holdFills {
		q := s.bidAsk[pair]
		o.AmountFilled = amount
		o.FillPrice = q[0].Add(q[1]).Div(dec("2"))
		o.Open = false
	}
	s.orders[o.ID] = o
	s.created = append(s.created, o.ID)
	state := *o
	return &state, nil
}

func (s *stubExchange) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	o.Open = false
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

func (s *stubExchange) GetOrderInfo(_ context.Context, orderID string) (*domain.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}
	state := *o
	return &state, nil
}

func (s *stubExchange) GetOpenOrders(_ context.Context, pair domain.Pair) ([]*domain.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*domain.OrderState
	for _, o := range s.orders {
		if o.Open && o.Pair == pair {
			state := *o
			open = append(open, &state)
		}
	}
	return open, nil
}

func (s *stubExchange) GetBidAsk(_ context.Context, pair domain.Pair) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bidAskHits++
	q, ok := s.bidAsk[pair]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no quote for %s", pair)
	}
	return q[0], q[1], nil
}

func (s *stubExchange) GetPairInfo(_ context.Context, pair domain.Pair) (*domain.PairInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.pairInfo[pair]
	if !ok {
		return nil, fmt.Errorf("no pair info for %s", pair)
	}
	return &info, nil
}

func (s *stubExchange) GetBalances(_ context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make(map[string]decimal.Decimal, len(s.balances))
	for c, v := range s.balances {
		balances[c] = v
	}
	return balances, nil
}

func (s *stubExchange) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func (s *stubExchange) lastOrder() domain.OrderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[s.created[len(s.created)-1]]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, exch exchange.Exchange, cfg Config) *PositionManager {
	t.Helper()
	if cfg.PositionAmount.IsZero() {
		cfg.PositionAmount = dec("2000")
	}
	if cfg.QuoteSymbol == "" {
		cfg.QuoteSymbol = "USD"
	}
	if cfg.StopLossPct.IsZero() {
		cfg.StopLossPct = dec("2.5")
	}
	m, err := NewPositionManager(exch, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewPositionManager: %v", err)
	}
	return m
}

func TestNewPositionManagerValidation(t *testing.T) {
	exch := newStubExchange()
	if _, err := NewPositionManager(exch, Config{
		PositionAmount: dec("0"), QuoteSymbol: "USD", StopLossPct: dec("2.5"),
	}, testLogger()); err == nil {
		t.Error("zero position amount should fail")
	}
	if _, err := NewPositionManager(exch, Config{
		PositionAmount: dec("2000"), QuoteSymbol: "USD", StopLossPct: dec("-1"),
	}, testLogger()); err == nil {
		t.Error("negative stop loss should fail")
	}
}

func TestSwitchPositionSizesFromMidPrice(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "19.9", "20.1")
	m := newTestManager(t, exch, Config{})

	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}

	if exch.orderCount() != 1 {
		t.Fatalf("order count = %d, want 1", exch.orderCount())
	}
	order := exch.lastOrder()
	if order.Operation != domain.OperationBuy {
		t.Errorf("operation = %s, want buy", order.Operation)
	}
	// 2000 / ((19.9+20.1)/2) = 100 base units.
	if !order.Amount.Equal(dec("100")) {
		t.Errorf("order size = %s, want 100", order.Amount)
	}

	pos := m.Position(avaxUSD)
	if pos == nil {
		t.Fatal("position not recorded")
	}
	if !pos.Target.Equal(dec("100")) {
		t.Errorf("target = %s, want 100", pos.Target)
	}
	if !pos.Initial.IsZero() {
		t.Errorf("initial = %s, want 0", pos.Initial)
	}
}

func TestSwitchPositionTruncatesToPrecision(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "30", "30")
	exch.mu.Lock()
	exch.pairInfo[avaxUSD] = domain.PairInfo{BasePrecision: 2, QuotePrecision: 2}
	exch.mu.Unlock()
	m := newTestManager(t, exch, Config{})

	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionShort, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}

	// 2000/30 = 66.666..., short, truncated toward zero to 2 places.
	pos := m.Position(avaxUSD)
	if !pos.Target.Equal(dec("-66.66")) {
		t.Errorf("target = %s, want -66.66", pos.Target)
	}
	order := exch.lastOrder()
	if order.Operation != domain.OperationSell {
		t.Errorf("operation = %s, want sell", order.Operation)
	}
	if !order.Amount.Equal(dec("66.66")) {
		t.Errorf("order size = %s, want 66.66", order.Amount)
	}
}

func TestSwitchPositionNoOpGuard(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	m := newTestManager(t, exch, Config{})

	// Neutral with no position at all is a no-op.
	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionNeutral, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}
	if exch.orderCount() != 0 {
		t.Fatalf("order count = %d, want 0", exch.orderCount())
	}

	// Repeating a reached target is a no-op.
	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}
	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}
	if exch.orderCount() != 1 {
		t.Errorf("order count = %d, want 1 (second long is a no-op)", exch.orderCount())
	}
}

func TestSwitchPositionCancelsStaleOrderFirst(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	exch.holdFills = true
	m := newTestManager(t, exch, Config{})

	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}
	first := exch.lastOrder()
	if !first.Open {
		t.Fatal("first order should still be open")
	}

	// Simulate a partial fill of 40 of the 100 before the next switch.
	exch.mu.Lock()
	exch.orders[first.ID].AmountFilled = dec("40")
	exch.orders[first.ID].FillPrice = dec("20")
	exch.mu.Unlock()

	// The target position is unchanged but not reached, so the manager must
	// cancel the stale order, observe its fills, and order the remainder.
	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}

	if len(exch.cancelled) != 1 || exch.cancelled[0] != first.ID {
		t.Fatalf("cancelled = %v, want [%s]", exch.cancelled, first.ID)
	}
	second := exch.lastOrder()
	if second.Operation != domain.OperationBuy {
		t.Errorf("second operation = %s, want buy", second.Operation)
	}
	if !second.Amount.Equal(dec("60")) {
		t.Errorf("second order size = %s, want 60 (100 target - 40 filled)", second.Amount)
	}

	pos := m.Position(avaxUSD)
	if !pos.Initial.Equal(dec("40")) {
		t.Errorf("snapshot initial = %s, want 40", pos.Initial)
	}
}

func TestSwitchPositionConversionPair(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	avaxBTC := domain.NewPair("AVAX", "BTC")
	exch.setQuote(avaxBTC, "0.00030", "0.00032")
	exch.setQuote(avaxUSD, "19.5", "20.5")
	m := newTestManager(t, exch, Config{})

	if err := m.SwitchPosition(ctx, avaxBTC, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}

	// Sizing is 2000 USD converted through the AVAX/USD mid (20): 100 units.
	order := exch.lastOrder()
	if order.Pair != avaxBTC {
		t.Errorf("order pair = %s, want %s", order.Pair, avaxBTC)
	}
	if !order.Amount.Equal(dec("100")) {
		t.Errorf("order size = %s, want 100", order.Amount)
	}
}

func TestOnSignalBorrowingDisabledFoldsShort(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	m := newTestManager(t, exch, Config{BorrowingDisabled: true})

	// Short folds to neutral; with no position that is a no-op.
	m.OnSignal(ctx, domain.Signal{Pair: avaxUSD, Position: domain.PositionShort})
	if exch.orderCount() != 0 {
		t.Errorf("order count = %d, want 0 (short folded to neutral)", exch.orderCount())
	}
}

func TestOnSignalSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	exch.createErr = errors.New("rejected")
	m := newTestManager(t, exch, Config{})

	// Must not panic or leave a phantom position behind.
	m.OnSignal(ctx, domain.Signal{Pair: avaxUSD, Position: domain.PositionLong})
	if m.Position(avaxUSD) != nil {
		t.Error("failed order must not record a position")
	}
}

func TestStopLossForcesNeutralOncePerTimestamp(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	exch.balances["USD"] = dec("8000")
	m := newTestManager(t, exch, Config{})

	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}
	if exch.orderCount() != 1 {
		t.Fatalf("order count = %d, want 1", exch.orderCount())
	}
	exch.balances["AVAX"] = dec("100")

	// Price collapses far past the 2.5% stop.
	exch.setQuote(avaxUSD, "15", "15")

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := domain.Bar{Pair: avaxUSD, Timestamp: t0, Open: dec("15"), Close: dec("15")}

	m.OnBar(ctx, bar)
	if exch.orderCount() != 2 {
		t.Fatalf("order count = %d, want 2 (liquidation submitted)", exch.orderCount())
	}
	liquidation := exch.lastOrder()
	if liquidation.Operation != domain.OperationSell {
		t.Errorf("liquidation operation = %s, want sell", liquidation.Operation)
	}
	if !liquidation.Amount.Equal(dec("100")) {
		t.Errorf("liquidation size = %s, want 100", liquidation.Amount)
	}

	// Feeding the same timestamp again must not submit a second liquidation.
	m.OnBar(ctx, bar)
	if exch.orderCount() != 2 {
		t.Errorf("order count = %d, want 2 (check is idempotent per timestamp)", exch.orderCount())
	}
}

func TestStopLossNotTriggeredAboveThreshold(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	m := newTestManager(t, exch, Config{})

	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}

	// -1% is inside the 2.5% stop.
	exch.setQuote(avaxUSD, "19.8", "19.8")
	if err := m.CheckLoss(ctx); err != nil {
		t.Fatalf("CheckLoss: %v", err)
	}
	if exch.orderCount() != 1 {
		t.Errorf("order count = %d, want 1 (no liquidation)", exch.orderCount())
	}
}

func TestOnBarRecordsEquity(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	exch.balances["USD"] = dec("1000")
	exch.balances["AVAX"] = dec("5")
	m := newTestManager(t, exch, Config{})

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.OnBar(ctx, domain.Bar{Pair: avaxUSD, Timestamp: t0, Close: dec("20")})
	m.OnBar(ctx, domain.Bar{Pair: avaxUSD, Timestamp: t0.Add(time.Hour), Close: dec("30")})

	values := m.Equity().Values()
	if len(values) != 2 {
		t.Fatalf("equity samples = %d, want 2", len(values))
	}
	// 1000 USD + 5 AVAX * close.
	if values[0] != 1100 {
		t.Errorf("equity[0] = %v, want 1100", values[0])
	}
	if values[1] != 1150 {
		t.Errorf("equity[1] = %v, want 1150", values[1])
	}
}

func TestCancelOpenOrders(t *testing.T) {
	ctx := context.Background()
	exch := newStubExchange()
	exch.setQuote(avaxUSD, "20", "20")
	exch.holdFills = true
	m := newTestManager(t, exch, Config{})

	if err := m.SwitchPosition(ctx, avaxUSD, domain.PositionLong, false); err != nil {
		t.Fatalf("SwitchPosition: %v", err)
	}
	if err := m.CancelOpenOrders(ctx, avaxUSD); err != nil {
		t.Fatalf("CancelOpenOrders: %v", err)
	}
	if len(exch.cancelled) != 1 {
		t.Errorf("cancelled = %v, want one order", exch.cancelled)
	}
}
