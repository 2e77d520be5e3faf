// Package builtins provides the built-in strategy implementations that ship
// with the backtester.
package builtins

import (
	"fmt"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
	"github.com/aspis-finance/aspis-backtesting/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSIReversal)(nil)

// Trend filter for RSIReversal entries: price must trade above a long SMA
// by this multiplier before a long is opened.
const (
	trendFilterPeriod = 80
	trendFilterMult   = 1.01
)

// RSIReversal goes long when RSI dips below the oversold level while price
// holds above a long-term SMA filter, and exits to neutral when RSI rises
// above the overbought level.
type RSIReversal struct {
	oversold   float64
	overbought float64

	rsi       *strategy.RSI
	trendSMA  *strategy.SMA
	readyBars int
}

// NewRSIReversal creates an RSIReversal from its parameters:
// period, oversold_level, overbought_level.
func NewRSIReversal(params strategy.Params) (strategy.Strategy, error) {
	period, err := params.Int("period")
	if err != nil {
		return nil, err
	}
	oversold, err := params.Float("oversold_level")
	if err != nil {
		return nil, err
	}
	overbought, err := params.Float("overbought_level")
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("oversold_level %v must be below overbought_level %v", oversold, overbought)
	}
	return &RSIReversal{
		oversold:   oversold,
		overbought: overbought,
		rsi:        strategy.NewRSI(period),
		trendSMA:   strategy.NewSMA(trendFilterPeriod),
	}, nil
}

// Name returns "rsi-reversal".
func (s *RSIReversal) Name() string {
	return "rsi-reversal"
}

// OnBar feeds the indicators and emits a signal once RSI has produced at
// least two values.
func (s *RSIReversal) OnBar(bar domain.Bar) *domain.Signal {
	close := bar.Close.InexactFloat64()
	s.rsi.Add(close)
	s.trendSMA.Add(close)

	if !s.rsi.Ready() {
		return nil
	}
	s.readyBars++
	if s.readyBars < 2 {
		return nil
	}

	switch {
	case s.rsi.Value() < s.oversold && s.trendSMA.Ready() && close > s.trendSMA.Value()*trendFilterMult:
		return &domain.Signal{Timestamp: bar.Timestamp, Pair: bar.Pair, Position: domain.PositionLong}
	case s.rsi.Value() > s.overbought:
		return &domain.Signal{Timestamp: bar.Timestamp, Pair: bar.Pair, Position: domain.PositionNeutral}
	}
	return nil
}
