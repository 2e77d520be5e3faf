package builtins

import "github.com/aspis-finance/aspis-backtesting/internal/strategy"

// Register adds all built-in strategy factories to the registry.
func Register(r *strategy.Registry) {
	r.Register("rsi-reversal", NewRSIReversal)
	r.Register("trend-follow", NewTrendFollow)
	r.Register("bb-meanrev", NewBBMeanRev)
}

// NewRegistry returns a registry pre-populated with the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
