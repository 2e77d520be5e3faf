package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/aspis-finance/aspis-backtesting/internal/backtest"
)

// RunFunc executes a single bound backtest run.
type RunFunc func(ctx context.Context, params backtest.Params) (*backtest.Result, error)

// JobResult pairs a job with its outcome. Exactly one of Result and Err is
// set.
type JobResult struct {
	Job    Job
	Result *backtest.Result
	Err    error
}

// WorkerCount sizes the worker pool, leaving cpuMargin CPUs free. At least
// one worker is always used.
func WorkerCount(cpuMargin int) int {
	w := runtime.NumCPU() - cpuMargin
	if w < 1 {
		w = 1
	}
	return w
}

// Runner executes jobs across a fixed-size worker pool.
type Runner struct {
	run     RunFunc
	workers int
	log     *slog.Logger
}

// NewRunner creates a Runner with the given worker count.
func NewRunner(run RunFunc, workers int, log *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{run: run, workers: workers, log: log}
}

// Run executes all jobs and returns one result per job, in job order. A
// failed job is recorded and does not stop the others. Cancelling the
// context drains the remaining jobs as failures.
func (r *Runner) Run(ctx context.Context, jobs []Job) []JobResult {
	if len(jobs) == 0 {
		return nil
	}
	workers := r.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	indexes := make(chan int, len(jobs))
	for i := range jobs {
		indexes <- i
	}
	close(indexes)

	results := make([]JobResult, len(jobs))
	var done, failed atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				job := jobs[i]
				if err := ctx.Err(); err != nil {
					results[i] = JobResult{Job: job, Err: err}
					failed.Add(1)
					continue
				}

				res, err := r.runJob(ctx, job)
				results[i] = JobResult{Job: job, Result: res, Err: err}
				if err != nil {
					failed.Add(1)
					r.log.Error("backtest failed",
						"job", job.Params.Name,
						"error", err)
					continue
				}
				r.log.Info("backtest finished",
					"job", job.Params.Name,
					"done", done.Add(1),
					"total", len(jobs),
					"profit_pct", res.ProfitPct,
					"sharpe", res.Sharpe,
					"max_drawdown", res.MaxDrawdown)
			}
		}()
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		r.log.Warn("sweep finished with failures", "failed", n, "total", len(jobs))
	}
	return results
}

// runJob shields the pool from a panicking run.
func (r *Runner) runJob(ctx context.Context, job Job) (res *backtest.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("job %q panicked: %v", job.Params.Name, p)
		}
	}()
	return r.run(ctx, job.Params)
}

// ---------------------------------------------------------------------------
// Result selection
// ---------------------------------------------------------------------------

// Successes filters the results that completed.
func Successes(results []JobResult) []JobResult {
	var out []JobResult
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Failures filters the results that errored.
func Failures(results []JobResult) []JobResult {
	var out []JobResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Best returns the successful result ranking highest on the given key:
// "profit", "sharpe", or "drawdown" (smallest drawdown wins).
func Best(results []JobResult, rankKey string) (*JobResult, error) {
	succ := Successes(results)
	if len(succ) == 0 {
		return nil, fmt.Errorf("no successful runs to rank")
	}

	best := succ[0]
	bestScore, err := score(best.Result, rankKey)
	if err != nil {
		return nil, err
	}
	for _, r := range succ[1:] {
		s, err := score(r.Result, rankKey)
		if err != nil {
			return nil, err
		}
		if s > bestScore {
			best, bestScore = r, s
		}
	}
	return &best, nil
}

func score(res *backtest.Result, rankKey string) (float64, error) {
	switch rankKey {
	case "", "profit":
		return res.ProfitPct, nil
	case "sharpe":
		return res.Sharpe, nil
	case "drawdown":
		return -res.MaxDrawdown, nil
	default:
		return 0, fmt.Errorf("unknown rank key %q", rankKey)
	}
}
