// Package strategy defines the Strategy interface for signal sources and
// provides a Registry of parameterized strategy factories.
package strategy

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// Strategy consumes bars in timestamp order and emits target-position
// signals. OnBar returns nil when the strategy has no opinion for the bar.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// OnBar processes a new OHLCV bar and returns at most one signal.
	OnBar(bar domain.Bar) *domain.Signal
}

// Params holds a strategy's tunable parameters by name. All values are
// decimals so sweep grids preserve exact literals.
type Params map[string]decimal.Decimal

// Int returns the named parameter as an int. It errors when the parameter
// is missing or has a fractional part.
func (p Params) Int(name string) (int, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	if !v.IsInteger() {
		return 0, fmt.Errorf("parameter %q must be an integer, got %s", name, v)
	}
	return int(v.IntPart()), nil
}

// Float returns the named parameter as a float64.
func (p Params) Float(name string) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", name)
	}
	return v.InexactFloat64(), nil
}

// Factory builds a strategy instance from its parameters.
type Factory func(params Params) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory to the registry under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds a strategy by name with the given parameters.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, r.List())
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("building strategy %q: %w", name, err)
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
