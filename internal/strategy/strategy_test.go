package strategy

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aspis-finance/aspis-backtesting/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string                 { return s.name }
func (s *stubStrategy) OnBar(_ domain.Bar) *domain.Signal { return nil }

func stubFactory(name string) Factory {
	return func(_ Params) (Strategy, error) {
		return &stubStrategy{name: name}, nil
	}
}

func TestRegistryNewAndList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory("beta"))
	r.Register("alpha", stubFactory("alpha"))

	s, err := r.New("alpha", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != "alpha" {
		t.Errorf("Name() = %q, want alpha", s.Name())
	}

	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List() = %v, want [alpha beta]", names)
	}
}

func TestRegistryNewUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New("nonexistent", nil); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestParamsInt(t *testing.T) {
	p := Params{
		"period":   decimal.NewFromInt(14),
		"fraction": decimal.RequireFromString("14.5"),
	}

	n, err := p.Int("period")
	if err != nil {
		t.Fatalf("Int(period): %v", err)
	}
	if n != 14 {
		t.Errorf("Int(period) = %d, want 14", n)
	}
	if _, err := p.Int("fraction"); err == nil {
		t.Error("expected error for fractional parameter")
	}
	if _, err := p.Int("missing"); err == nil {
		t.Error("expected error for missing parameter")
	}
}

func TestParamsFloat(t *testing.T) {
	p := Params{"level": decimal.RequireFromString("30.5")}
	v, err := p.Float("level")
	if err != nil {
		t.Fatalf("Float(level): %v", err)
	}
	if v != 30.5 {
		t.Errorf("Float(level) = %v, want 30.5", v)
	}
	if _, err := p.Float("missing"); err == nil {
		t.Error("expected error for missing parameter")
	}
}

// ---------------------------------------------------------------------------
// Indicators
// ---------------------------------------------------------------------------

func TestSMA(t *testing.T) {
	s := NewSMA(3)
	s.Add(1)
	s.Add(2)
	if s.Ready() {
		t.Error("SMA ready before window filled")
	}
	s.Add(3)
	if !s.Ready() {
		t.Fatal("SMA not ready with full window")
	}
	if got := s.Value(); got != 2 {
		t.Errorf("Value() = %v, want 2", got)
	}
	s.Add(4)
	if got := s.Value(); got != 3 {
		t.Errorf("Value() after slide = %v, want 3", got)
	}
}

func TestRSIMonotonicRise(t *testing.T) {
	r := NewRSI(2)
	for _, c := range []float64{10, 11, 12} {
		r.Add(c)
	}
	if !r.Ready() {
		t.Fatal("RSI not ready after period+1 closes")
	}
	if got := r.Value(); got != 100 {
		t.Errorf("Value() = %v, want 100 for monotonic rise", got)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	r := NewRSI(2)
	for _, c := range []float64{10, 11, 12, 11} {
		r.Add(c)
	}
	// avgGain 0.5 and avgLoss 0.5 give RSI 50.
	if got := r.Value(); math.Abs(got-50) > 1e-9 {
		t.Errorf("Value() = %v, want 50", got)
	}
}

func TestRSINotReadyEarly(t *testing.T) {
	r := NewRSI(14)
	for i := 0; i < 14; i++ {
		r.Add(float64(100 + i))
	}
	if r.Ready() {
		t.Error("RSI ready with only period closes")
	}
	r.Add(115)
	if !r.Ready() {
		t.Error("RSI not ready after period+1 closes")
	}
}

func TestBollingerBands(t *testing.T) {
	b := NewBollinger(2, 2)
	b.Add(10)
	if b.Ready() {
		t.Error("Bollinger ready before window filled")
	}
	b.Add(20)
	if !b.Ready() {
		t.Fatal("Bollinger not ready with full window")
	}
	// Mean 15, population standard deviation 5.
	if got := b.Middle(); got != 15 {
		t.Errorf("Middle() = %v, want 15", got)
	}
	if got := b.Upper(); got != 25 {
		t.Errorf("Upper() = %v, want 25", got)
	}
	if got := b.Lower(); got != 5 {
		t.Errorf("Lower() = %v, want 5", got)
	}
}
