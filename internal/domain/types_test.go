package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair("AVAX/USD")
	if err != nil {
		t.Fatalf("ParsePair returned error: %v", err)
	}
	if p.Base != "AVAX" || p.Quote != "USD" {
		t.Errorf("ParsePair = %+v, want AVAX/USD", p)
	}
	if p.String() != "AVAX/USD" {
		t.Errorf("String() = %q, want %q", p.String(), "AVAX/USD")
	}

	for _, bad := range []string{"", "AVAX", "AVAX/", "/USD", "A/B/C"} {
		if _, err := ParsePair(bad); err == nil {
			t.Errorf("ParsePair(%q) should fail", bad)
		}
	}
}

func TestPositionFromQuantity(t *testing.T) {
	tests := []struct {
		qty  string
		want TargetPosition
	}{
		{"1.5", PositionLong},
		{"-0.25", PositionShort},
		{"0", PositionNeutral},
	}
	for _, tt := range tests {
		got := PositionFromQuantity(decimal.RequireFromString(tt.qty))
		if got != tt.want {
			t.Errorf("PositionFromQuantity(%s) = %q, want %q", tt.qty, got, tt.want)
		}
	}
}

func TestSignedFillDelta(t *testing.T) {
	buy := &OrderState{Operation: OperationBuy, AmountFilled: decimal.RequireFromString("3")}
	if !buy.SignedFillDelta().Equal(decimal.RequireFromString("3")) {
		t.Errorf("buy delta = %s, want 3", buy.SignedFillDelta())
	}

	sell := &OrderState{Operation: OperationSell, AmountFilled: decimal.RequireFromString("3")}
	if !sell.SignedFillDelta().Equal(decimal.RequireFromString("-3")) {
		t.Errorf("sell delta = %s, want -3", sell.SignedFillDelta())
	}
}
