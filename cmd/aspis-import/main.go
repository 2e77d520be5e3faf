// One-shot tool: import a candle CSV into the SQLite or Parquet bar store
// so repeated sweeps do not re-parse the dump.
//
// Usage:
//
//	aspis-import -csv data/AVAXUSDT_4h.csv -symbol AVAX -backend sqlite
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/aspis-finance/aspis-backtesting/internal/config"
	"github.com/aspis-finance/aspis-backtesting/internal/domain"
	"github.com/aspis-finance/aspis-backtesting/internal/store"
	"github.com/aspis-finance/aspis-backtesting/internal/util"
)

func main() {
	var (
		cfgPath   = flag.String("config", os.Getenv("ASPIS_CONFIG"), "path to config yaml (optional)")
		csvPath   = flag.String("csv", "", "candle CSV to import")
		symbol    = flag.String("symbol", "", "base symbol, e.g. AVAX")
		quote     = flag.String("quote", "USD", "quote symbol")
		timeframe = flag.String("timeframe", "4h", "candle timeframe")
		backend   = flag.String("backend", "sqlite", "bar store backend: sqlite or parquet")
	)
	flag.Parse()

	if *csvPath == "" || *symbol == "" {
		log.Fatal("-csv and -symbol are required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	pair := domain.Pair{Base: *symbol, Quote: *quote}
	bars, err := store.ReadCSVBars(*csvPath, pair)
	if err != nil {
		log.Fatalf("failed to read csv: %v", err)
	}

	var barStore store.BarStore
	switch *backend {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		defer s.Close()
		barStore = s
	case "parquet":
		barStore = store.NewParquetStore(cfg.Storage.DataDir)
	default:
		log.Fatalf("unknown backend %q", *backend)
	}

	if err := barStore.WriteBars(context.Background(), *timeframe, bars); err != nil {
		log.Fatalf("failed to write bars: %v", err)
	}

	slog.Info("import complete",
		"pair", pair.String(),
		"timeframe", *timeframe,
		"backend", *backend,
		"bars", len(bars))
}
