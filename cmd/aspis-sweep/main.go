// Expands a parameter grid into backtest jobs, runs them across a worker
// pool, and reports the best performing combination.
//
// Usage:
//
//	aspis-sweep -grid config/sweep.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/aspis-finance/aspis-backtesting/internal/backtest"
	"github.com/aspis-finance/aspis-backtesting/internal/config"
	"github.com/aspis-finance/aspis-backtesting/internal/strategy/builtins"
	"github.com/aspis-finance/aspis-backtesting/internal/sweep"
	"github.com/aspis-finance/aspis-backtesting/internal/util"
)

func main() {
	var (
		cfgPath  = flag.String("config", os.Getenv("ASPIS_CONFIG"), "path to config yaml (optional)")
		gridPath = flag.String("grid", "", "path to sweep grid yaml")
		workers  = flag.Int("workers", 0, "worker count (0 = CPUs minus configured margin)")
		rankKey  = flag.String("rank", "", "rank key: profit, sharpe, or drawdown (default from config)")
	)
	flag.Parse()

	if *gridPath == "" {
		log.Fatal("-grid is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	grid, err := config.LoadGrid(*gridPath)
	if err != nil {
		log.Fatalf("failed to load grid: %v", err)
	}
	jobs, err := sweep.Expand(grid)
	if err != nil {
		log.Fatalf("failed to expand grid: %v", err)
	}

	n := *workers
	if n <= 0 {
		n = sweep.WorkerCount(cfg.Sweep.CPUMargin)
	}
	rank := *rankKey
	if rank == "" {
		rank = cfg.Sweep.RankKey
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting sweep", "jobs", len(jobs), "workers", n, "rank", rank)

	reg := builtins.NewRegistry()
	run := func(ctx context.Context, p backtest.Params) (*backtest.Result, error) {
		return backtest.Run(ctx, reg, p, logger)
	}
	results := sweep.NewRunner(run, n, logger).Run(ctx, jobs)

	if failures := sweep.Failures(results); len(failures) > 0 {
		for _, f := range failures {
			slog.Error("job failed", "job", f.Job.Params.Name, "error", f.Err)
		}
	}

	writeListing(os.Stdout, results)

	best, err := sweep.Best(results, rank)
	if err != nil {
		log.Fatalf("sweep error: %v", err)
	}

	fmt.Printf("best run: %s\n", best.Result.Params.Name)
	fmt.Printf("  profit:       %.2f%%\n", best.Result.ProfitPct)
	fmt.Printf("  sharpe:       %.2f\n", best.Result.Sharpe)
	fmt.Printf("  max drawdown: %.2f%%\n", best.Result.MaxDrawdown*100)
	fmt.Println("  parameters:")
	keys := make([]string, 0, len(best.Job.Raw))
	for k := range best.Job.Raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("    %s: %v\n", k, best.Job.Raw[k])
	}
}

// writeListing prints one line per job in job order, marking failures.
func writeListing(w io.Writer, results []sweep.JobResult) {
	fmt.Fprintln(w, "results:")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "  %-32s FAILED: %v\n", r.Job.Params.Name, r.Err)
			continue
		}
		fmt.Fprintf(w, "  %-32s profit %8.2f%%  sharpe %6.2f  drawdown %6.2f%%\n",
			r.Result.Params.Name, r.Result.ProfitPct, r.Result.Sharpe,
			r.Result.MaxDrawdown*100)
	}
}
