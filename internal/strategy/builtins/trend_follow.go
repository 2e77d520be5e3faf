package builtins

import (
	"fmt"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
	"github.com/aspis-finance/aspis-backtesting/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*TrendFollow)(nil)

// TrendFollow goes long when the short SMA trades above the long SMA while
// RSI sits below the threshold, and exits to neutral when the short SMA
// drops below the long SMA with RSI above the threshold.
type TrendFollow struct {
	threshold float64

	rsi       *strategy.RSI
	smaShort  *strategy.SMA
	smaLong   *strategy.SMA
	readyBars int
}

// NewTrendFollow creates a TrendFollow from its parameters:
// rsi_period, ma_short, ma_long, rsi_threshold.
func NewTrendFollow(params strategy.Params) (strategy.Strategy, error) {
	rsiPeriod, err := params.Int("rsi_period")
	if err != nil {
		return nil, err
	}
	maShort, err := params.Int("ma_short")
	if err != nil {
		return nil, err
	}
	maLong, err := params.Int("ma_long")
	if err != nil {
		return nil, err
	}
	threshold, err := params.Float("rsi_threshold")
	if err != nil {
		return nil, err
	}
	if rsiPeriod <= 0 {
		return nil, fmt.Errorf("rsi_period must be positive, got %d", rsiPeriod)
	}
	if maShort <= 0 || maLong <= maShort {
		return nil, fmt.Errorf("moving average periods must satisfy 0 < ma_short < ma_long, got %d/%d", maShort, maLong)
	}
	return &TrendFollow{
		threshold: threshold,
		rsi:       strategy.NewRSI(rsiPeriod),
		smaShort:  strategy.NewSMA(maShort),
		smaLong:   strategy.NewSMA(maLong),
	}, nil
}

// Name returns "trend-follow".
func (s *TrendFollow) Name() string {
	return "trend-follow"
}

// OnBar feeds the indicators and emits a signal once RSI has produced at
// least two values and both moving averages are warm.
func (s *TrendFollow) OnBar(bar domain.Bar) *domain.Signal {
	close := bar.Close.InexactFloat64()
	s.rsi.Add(close)
	s.smaShort.Add(close)
	s.smaLong.Add(close)

	if !s.rsi.Ready() {
		return nil
	}
	s.readyBars++
	if s.readyBars < 2 || !s.smaLong.Ready() {
		return nil
	}

	switch {
	case s.rsi.Value() < s.threshold && s.smaShort.Value() > s.smaLong.Value():
		return &domain.Signal{Timestamp: bar.Timestamp, Pair: bar.Pair, Position: domain.PositionLong}
	case s.rsi.Value() > s.threshold && s.smaShort.Value() < s.smaLong.Value():
		return &domain.Signal{Timestamp: bar.Timestamp, Pair: bar.Pair, Position: domain.PositionNeutral}
	}
	return nil
}
