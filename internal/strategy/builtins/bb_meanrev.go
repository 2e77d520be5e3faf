package builtins

import (
	"fmt"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
	"github.com/aspis-finance/aspis-backtesting/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BBMeanRev)(nil)

// BBMeanRev buys dips below the lower Bollinger band while the short SMA
// trades above the long SMA, and exits to neutral when the short SMA drops
// below the long SMA.
type BBMeanRev struct {
	bb        *strategy.Bollinger
	smaShort  *strategy.SMA
	smaLong   *strategy.SMA
	readyBars int
}

// NewBBMeanRev creates a BBMeanRev from its parameters:
// ma_short, ma_long, bb_period, bb_std_dev.
func NewBBMeanRev(params strategy.Params) (strategy.Strategy, error) {
	maShort, err := params.Int("ma_short")
	if err != nil {
		return nil, err
	}
	maLong, err := params.Int("ma_long")
	if err != nil {
		return nil, err
	}
	bbPeriod, err := params.Int("bb_period")
	if err != nil {
		return nil, err
	}
	stdDev, err := params.Float("bb_std_dev")
	if err != nil {
		return nil, err
	}
	if maShort <= 0 || maLong <= maShort {
		return nil, fmt.Errorf("moving average periods must satisfy 0 < ma_short < ma_long, got %d/%d", maShort, maLong)
	}
	if bbPeriod <= 1 {
		return nil, fmt.Errorf("bb_period must be greater than 1, got %d", bbPeriod)
	}
	if stdDev <= 0 {
		return nil, fmt.Errorf("bb_std_dev must be positive, got %v", stdDev)
	}
	return &BBMeanRev{
		bb:       strategy.NewBollinger(bbPeriod, stdDev),
		smaShort: strategy.NewSMA(maShort),
		smaLong:  strategy.NewSMA(maLong),
	}, nil
}

// Name returns "bb-meanrev".
func (s *BBMeanRev) Name() string {
	return "bb-meanrev"
}

// OnBar feeds the indicators and emits a signal once the bands have at
// least two values and both moving averages are warm.
func (s *BBMeanRev) OnBar(bar domain.Bar) *domain.Signal {
	close := bar.Close.InexactFloat64()
	s.bb.Add(close)
	s.smaShort.Add(close)
	s.smaLong.Add(close)

	if !s.bb.Ready() {
		return nil
	}
	s.readyBars++
	if s.readyBars < 2 || !s.smaLong.Ready() {
		return nil
	}

	switch {
	case close < s.bb.Lower() && s.smaShort.Value() > s.smaLong.Value():
		return &domain.Signal{Timestamp: bar.Timestamp, Pair: bar.Pair, Position: domain.PositionLong}
	case s.smaShort.Value() < s.smaLong.Value():
		return &domain.Signal{Timestamp: bar.Timestamp, Pair: bar.Pair, Position: domain.PositionNeutral}
	}
	return nil
}
