// Package backtest replays historical bars through a strategy against a
// simulated exchange and summarizes the resulting equity curve.
package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/analytics"
	"github.com/aspis-finance/aspis-backtesting/internal/domain"
	"github.com/aspis-finance/aspis-backtesting/internal/engine"
	"github.com/aspis-finance/aspis-backtesting/internal/exchange"
	"github.com/aspis-finance/aspis-backtesting/internal/store"
	"github.com/aspis-finance/aspis-backtesting/internal/strategy"
)

// Params fully describes a single backtest run.
type Params struct {
	// Name labels the run in logs and sweep results.
	Name string

	// Symbol is the traded instrument's base currency, e.g. "AVAX".
	Symbol string

	// QuoteSymbol is the accounting currency. Defaults to "USD".
	QuoteSymbol string

	// Timeframe of the candle data, e.g. "4h".
	Timeframe string

	// DataPath locates the candle data: a CSV file for the csv backend,
	// a database file for sqlite, or a data directory for parquet.
	DataPath string

	// DataBackend selects where bars are read from: "csv" (default),
	// "sqlite", or "parquet".
	DataBackend string

	InitialCapital decimal.Decimal
	PositionAmount decimal.Decimal
	StopLossPct    decimal.Decimal
	SpreadPct      decimal.Decimal
	FeePct         decimal.Decimal

	// Strategy names a registered strategy factory; StrategyParams is
	// passed to it verbatim.
	Strategy       string
	StrategyParams strategy.Params

	BasePrecision  int32
	QuotePrecision int32

	RiskFreeRate      float64
	BorrowingDisabled bool
}

// Pair returns the traded pair.
func (p Params) Pair() domain.Pair {
	return domain.Pair{Base: p.Symbol, Quote: p.QuoteSymbol}
}

// Validate checks that the required run parameters are present.
func (p Params) Validate() error {
	switch {
	case p.Symbol == "":
		return fmt.Errorf("symbol is required")
	case p.QuoteSymbol == "":
		return fmt.Errorf("quote_symbol is required")
	case p.Strategy == "":
		return fmt.Errorf("strategy is required")
	case !p.InitialCapital.IsPositive():
		return fmt.Errorf("initial_capital must be positive, got %s", p.InitialCapital)
	case !p.PositionAmount.IsPositive():
		return fmt.Errorf("position_amount must be positive, got %s", p.PositionAmount)
	case !p.StopLossPct.IsPositive():
		return fmt.Errorf("stop_loss_pct must be positive, got %s", p.StopLossPct)
	case p.SpreadPct.IsNegative():
		return fmt.Errorf("spread_pct must not be negative, got %s", p.SpreadPct)
	case p.FeePct.IsNegative():
		return fmt.Errorf("fee_pct must not be negative, got %s", p.FeePct)
	case p.BasePrecision < 0 || p.QuotePrecision < 0:
		return fmt.Errorf("precisions must not be negative")
	}
	switch p.DataBackend {
	case "", "csv", "sqlite", "parquet":
	default:
		return fmt.Errorf("unknown data_backend %q", p.DataBackend)
	}
	return nil
}

// Result carries the performance metrics of a completed run alongside the
// parameters that produced them.
type Result struct {
	Params Params

	ProfitPct   float64
	Sharpe      float64
	MaxDrawdown float64

	Bars    int
	Signals int
}

// Run loads the candle data named by the parameters and replays it.
func Run(ctx context.Context, reg *strategy.Registry, p Params, log *slog.Logger) (*Result, error) {
	if p.DataPath == "" {
		return nil, fmt.Errorf("data_path is required")
	}
	bars, err := loadBars(ctx, p)
	if err != nil {
		return nil, err
	}
	return RunBars(ctx, reg, p, bars, log)
}

// loadBars reads the run's bar series from the configured backend.
func loadBars(ctx context.Context, p Params) ([]domain.Bar, error) {
	switch p.DataBackend {
	case "", "csv":
		return store.ReadCSVBars(p.DataPath, p.Pair())
	case "sqlite":
		s, err := store.NewSQLiteStore(p.DataPath)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.ReadBars(ctx, p.Pair(), p.Timeframe)
	case "parquet":
		return store.NewParquetStore(p.DataPath).ReadBars(ctx, p.Pair(), p.Timeframe)
	default:
		return nil, fmt.Errorf("unknown data_backend %q", p.DataBackend)
	}
}

// RunBars replays the given bars through the strategy named by the
// parameters. Bars must be in ascending timestamp order.
func RunBars(ctx context.Context, reg *strategy.Registry, p Params, bars []domain.Bar, log *slog.Logger) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to replay for %s", p.Pair())
	}

	strat, err := reg.New(p.Strategy, p.StrategyParams)
	if err != nil {
		return nil, err
	}

	sim := exchange.NewSimulator(
		map[string]decimal.Decimal{p.QuoteSymbol: p.InitialCapital},
		p.SpreadPct, p.FeePct)
	sim.RegisterPair(p.Pair(), domain.PairInfo{
		BasePrecision:  p.BasePrecision,
		QuotePrecision: p.QuotePrecision,
	})

	mgr, err := engine.NewPositionManager(sim, engine.Config{
		PositionAmount:    p.PositionAmount,
		QuoteSymbol:       p.QuoteSymbol,
		StopLossPct:       p.StopLossPct,
		BorrowingDisabled: p.BorrowingDisabled,
	}, log)
	if err != nil {
		return nil, err
	}

	signals := 0
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Fills happen at the bar open, before the strategy sees the bar.
		if err := sim.ProcessBar(ctx, bar); err != nil {
			return nil, err
		}
		mgr.OnBar(ctx, bar)
		if sig := strat.OnBar(bar); sig != nil {
			signals++
			mgr.OnSignal(ctx, *sig)
		}
	}

	summary, err := analytics.Summarize(mgr.Equity(), p.RiskFreeRate)
	if err != nil {
		return nil, fmt.Errorf("summarizing run %q: %w", p.Name, err)
	}

	return &Result{
		Params:      p,
		ProfitPct:   summary.ProfitPct,
		Sharpe:      summary.Sharpe,
		MaxDrawdown: summary.MaxDrawdown,
		Bars:        len(bars),
		Signals:     signals,
	}, nil
}
