// Package analytics records the equity curve of a backtest run and derives
// its summary performance statistics: simple return on equity, annualized
// Sharpe ratio, and maximum drawdown.
package analytics

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// tradingDaysPerYear is the annualization factor for periodic returns.
const tradingDaysPerYear = 252

// ErrNoEquity is returned by Summarize when the equity curve has no samples
// or starts at zero, so the return on equity is undefined.
var ErrNoEquity = errors.New("analytics: equity curve empty or starts at zero")

// Sample is total portfolio value at one point in time.
type Sample struct {
	When  time.Time
	Value float64
}

// EquityCurve is an append-only sequence of equity samples in nondecreasing
// timestamp order. One sample is appended per bar processed.
type EquityCurve struct {
	samples []Sample
}

// NewEquityCurve creates an empty equity curve.
func NewEquityCurve() *EquityCurve {
	return &EquityCurve{}
}

// Add appends a sample. Portfolio values arrive as decimals but statistics
// are computed in floating point.
func (c *EquityCurve) Add(when time.Time, value decimal.Decimal) {
	c.samples = append(c.samples, Sample{When: when, Value: value.InexactFloat64()})
}

// Len returns the number of recorded samples.
func (c *EquityCurve) Len() int {
	return len(c.samples)
}

// Values returns the recorded equity values in sample order.
func (c *EquityCurve) Values() []float64 {
	values := make([]float64, len(c.samples))
	for i, s := range c.samples {
		values[i] = s.Value
	}
	return values
}

// Result is the terminal, immutable summary of one backtest run.
type Result struct {
	ProfitPct   float64
	Sharpe      float64
	MaxDrawdown float64
}

// Summarize derives a Result from the finished equity curve. It is a pure
// read over the sample sequence and is safe to recompute deterministically.
// A curve with no samples, or whose first sample is zero, yields ErrNoEquity
// rather than a division by zero.
func Summarize(curve *EquityCurve, riskFreeRate float64) (Result, error) {
	values := curve.Values()
	if len(values) == 0 || values[0] == 0 {
		return Result{}, ErrNoEquity
	}

	profitPct := round2((values[len(values)-1]/values[0] - 1) * 100)
	returns := periodicReturns(values)

	return Result{
		ProfitPct:   profitPct,
		Sharpe:      sharpe(returns, riskFreeRate),
		MaxDrawdown: maxDrawdown(values),
	}, nil
}

// periodicReturns computes consecutive-sample returns. Empty when fewer than
// two samples are available.
func periodicReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

// sharpe computes the annualized Sharpe ratio from periodic returns using
// population statistics, rounded to two decimal places. It is exactly 0.0
// when fewer than two returns are available or volatility is zero.
func sharpe(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0.0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	volatility := math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
	if volatility == 0 {
		return 0.0
	}

	return round2((mean*tradingDaysPerYear - riskFreeRate) / volatility)
}

// maxDrawdown reports the largest peak-to-trough decline observed over the
// series, as a fraction in [0, 1]. 0 when fewer than two samples.
func maxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
