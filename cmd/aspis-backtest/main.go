// Runs a single backtest over stored candle data and prints the
// performance summary.
//
// Usage:
//
//	aspis-backtest -data data/AVAXUSDT_4h.csv -symbol AVAX \
//	  -strategy trend-follow -param rsi_period=7 -param ma_short=20 \
//	  -param ma_long=50 -param rsi_threshold=30
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/backtest"
	"github.com/aspis-finance/aspis-backtesting/internal/config"
	"github.com/aspis-finance/aspis-backtesting/internal/strategy"
	"github.com/aspis-finance/aspis-backtesting/internal/strategy/builtins"
	"github.com/aspis-finance/aspis-backtesting/internal/util"
)

func main() {
	var (
		cfgPath   = flag.String("config", os.Getenv("ASPIS_CONFIG"), "path to config yaml (optional)")
		dataPath  = flag.String("data", "", "candle data to replay: CSV file, sqlite db, or parquet dir")
		backend   = flag.String("backend", "csv", "data backend: csv, sqlite, or parquet")
		symbol    = flag.String("symbol", "", "base symbol, e.g. AVAX")
		quote     = flag.String("quote", "USD", "quote symbol")
		timeframe = flag.String("timeframe", "4h", "candle timeframe")
		stratName = flag.String("strategy", "", "strategy name")
		capital   = flag.String("capital", "10000", "initial capital in quote units")
		amount    = flag.String("amount", "2000", "position size in quote units")
		stopLoss  = flag.String("stop-loss", "2.5", "stop loss percent")
		spread    = flag.String("spread", "0", "simulated bid/ask spread fraction")
		fee       = flag.String("fee", "0", "simulated fee fraction")
		riskFree  = flag.Float64("risk-free", 0, "annual risk-free rate for the Sharpe ratio")
		noBorrow  = flag.Bool("no-borrow", false, "fold short signals into neutral")
	)
	params := strategy.Params{}
	flag.Func("param", "strategy parameter name=value (repeatable)", func(s string) error {
		name, val, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("expected name=value, got %q", s)
		}
		d, err := decimal.NewFromString(val)
		if err != nil {
			return err
		}
		params[name] = d
		return nil
	})
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	p := backtest.Params{
		Name:              fmt.Sprintf("%s-%s", *symbol, *stratName),
		Symbol:            *symbol,
		QuoteSymbol:       *quote,
		Timeframe:         *timeframe,
		DataPath:          *dataPath,
		DataBackend:       *backend,
		InitialCapital:    mustDec("capital", *capital),
		PositionAmount:    mustDec("amount", *amount),
		StopLossPct:       mustDec("stop-loss", *stopLoss),
		SpreadPct:         mustDec("spread", *spread),
		FeePct:            mustDec("fee", *fee),
		Strategy:          *stratName,
		StrategyParams:    params,
		BasePrecision:     8,
		QuotePrecision:    2,
		RiskFreeRate:      *riskFree,
		BorrowingDisabled: *noBorrow,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := backtest.Run(ctx, builtins.NewRegistry(), p, logger)
	if err != nil {
		log.Fatalf("backtest error: %v", err)
	}

	slog.Info("backtest complete",
		"job", res.Params.Name,
		"bars", res.Bars,
		"signals", res.Signals)
	fmt.Printf("profit:       %.2f%%\n", res.ProfitPct)
	fmt.Printf("sharpe:       %.2f\n", res.Sharpe)
	fmt.Printf("max drawdown: %.2f%%\n", res.MaxDrawdown*100)
}

func mustDec(name, v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Fatalf("invalid -%s value %q: %v", name, v, err)
	}
	return d
}
