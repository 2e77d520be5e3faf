package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/strategy"
)

// BindParams builds run parameters from a flat job map, as produced by a
// sweep grid. Values are strings, bools, or decimals. Keys the engine does
// not recognize are handed to the strategy as its parameters.
func BindParams(job map[string]any) (Params, error) {
	b := newBinder(job)

	p := Params{
		Name:              b.str("name", ""),
		Symbol:            b.str("symbol", ""),
		QuoteSymbol:       b.str("quote_symbol", "USD"),
		Timeframe:         b.str("timeframe", "4h"),
		DataPath:          b.str("data_path", ""),
		DataBackend:       b.str("data_backend", "csv"),
		InitialCapital:    b.dec("initial_capital", decimal.Zero),
		PositionAmount:    b.dec("position_amount", decimal.Zero),
		StopLossPct:       b.dec("stop_loss_pct", decimal.Zero),
		SpreadPct:         b.dec("spread_pct", decimal.Zero),
		FeePct:            b.dec("fee_pct", decimal.Zero),
		Strategy:          b.str("strategy", ""),
		BasePrecision:     b.int32("base_precision", 8),
		QuotePrecision:    b.int32("quote_precision", 2),
		RiskFreeRate:      b.float("risk_free_rate", 0),
		BorrowingDisabled: b.boolean("borrowing_disabled", false),
	}
	if b.err != nil {
		return Params{}, b.err
	}

	// Whatever is left belongs to the strategy.
	sp := make(strategy.Params, len(b.rest))
	for k, v := range b.rest {
		d, ok := v.(decimal.Decimal)
		if !ok {
			return Params{}, fmt.Errorf("strategy parameter %q must be numeric, got %T", k, v)
		}
		sp[k] = d
	}
	p.StrategyParams = sp

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// binder pops typed values off a job map, collecting the first type error.
type binder struct {
	rest map[string]any
	err  error
}

func newBinder(job map[string]any) *binder {
	rest := make(map[string]any, len(job))
	for k, v := range job {
		rest[k] = v
	}
	return &binder{rest: rest}
}

func (b *binder) take(key string) (any, bool) {
	v, ok := b.rest[key]
	if ok {
		delete(b.rest, key)
	}
	return v, ok
}

func (b *binder) fail(key string, want string, got any) {
	if b.err == nil {
		b.err = fmt.Errorf("parameter %q must be a %s, got %T", key, want, got)
	}
}

func (b *binder) str(key, def string) string {
	v, ok := b.take(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		b.fail(key, "string", v)
		return def
	}
	return s
}

func (b *binder) dec(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := b.take(key)
	if !ok {
		return def
	}
	d, ok := v.(decimal.Decimal)
	if !ok {
		b.fail(key, "number", v)
		return def
	}
	return d
}

func (b *binder) int32(key string, def int32) int32 {
	v, ok := b.take(key)
	if !ok {
		return def
	}
	d, ok := v.(decimal.Decimal)
	if !ok || !d.IsInteger() {
		b.fail(key, "integer", v)
		return def
	}
	return int32(d.IntPart())
}

func (b *binder) float(key string, def float64) float64 {
	v, ok := b.take(key)
	if !ok {
		return def
	}
	d, ok := v.(decimal.Decimal)
	if !ok {
		b.fail(key, "number", v)
		return def
	}
	return d.InexactFloat64()
}

func (b *binder) boolean(key string, def bool) bool {
	v, ok := b.take(key)
	if !ok {
		return def
	}
	t, ok := v.(bool)
	if !ok {
		b.fail(key, "boolean", v)
		return def
	}
	return t
}
