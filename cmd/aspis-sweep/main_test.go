package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/aspis-finance/aspis-backtesting/internal/backtest"
	"github.com/aspis-finance/aspis-backtesting/internal/sweep"
)

func TestWriteListing(t *testing.T) {
	ok := backtest.Params{Name: "avax-trend-0001"}
	bad := backtest.Params{Name: "avax-trend-0002"}
	results := []sweep.JobResult{
		{
			Job: sweep.Job{Index: 0, Params: ok},
			Result: &backtest.Result{
				Params:      ok,
				ProfitPct:   12.5,
				Sharpe:      1.1,
				MaxDrawdown: 0.08,
			},
		},
		{
			Job: sweep.Job{Index: 1, Params: bad},
			Err: errors.New("no bars to replay"),
		},
	}

	var buf bytes.Buffer
	writeListing(&buf, results)
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("listing has %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "avax-trend-0001") ||
		!strings.Contains(lines[1], "12.50") ||
		!strings.Contains(lines[1], "1.10") ||
		!strings.Contains(lines[1], "8.00") {
		t.Errorf("result line missing metrics: %q", lines[1])
	}
	if !strings.Contains(lines[2], "avax-trend-0002") ||
		!strings.Contains(lines[2], "FAILED") ||
		!strings.Contains(lines[2], "no bars to replay") {
		t.Errorf("failure line missing marker: %q", lines[2])
	}
}
