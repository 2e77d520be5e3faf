// Package domain defines the core types shared across the backtesting
// system: trading pairs, OHLCV bars, target positions, signals, and order
// state. All quantities and prices are fixed-point decimals.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pair identifies a tradable instrument as a base/quote symbol pair,
// e.g. AVAX/USD.
type Pair struct {
	Base  string
	Quote string
}

// NewPair creates a Pair from base and quote symbols.
func NewPair(base, quote string) Pair {
	return Pair{Base: base, Quote: quote}
}

// ParsePair parses a "BASE/QUOTE" string into a Pair.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, want BASE/QUOTE", s)
	}
	return Pair{Base: parts[0], Quote: parts[1]}, nil
}

// String returns the pair in "BASE/QUOTE" form.
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// PairInfo describes instrument precision: the number of decimal places
// allowed for base- and quote-currency amounts.
type PairInfo struct {
	BasePrecision  int32
	QuotePrecision int32
}

// Bar is one OHLCV sample for a pair over a fixed time interval.
type Bar struct {
	Pair      Pair
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// TargetPosition is the qualitative side a strategy wants to hold.
type TargetPosition string

const (
	PositionLong    TargetPosition = "long"
	PositionShort   TargetPosition = "short"
	PositionNeutral TargetPosition = "neutral"
)

// PositionFromQuantity maps a signed quantity to its qualitative side.
func PositionFromQuantity(qty decimal.Decimal) TargetPosition {
	switch qty.Sign() {
	case 1:
		return PositionLong
	case -1:
		return PositionShort
	default:
		return PositionNeutral
	}
}

// Signal is a trading-position decision emitted by a strategy.
type Signal struct {
	Timestamp time.Time
	Pair      Pair
	Position  TargetPosition
}

// OrderOperation is the side of an order.
type OrderOperation string

const (
	OperationBuy  OrderOperation = "buy"
	OperationSell OrderOperation = "sell"
)

// OrderState is the observable state of an order at the exchange: how much
// of it filled, at what volume-weighted price, and whether it is still open.
type OrderState struct {
	ID           string
	Operation    OrderOperation
	Pair         Pair
	Amount       decimal.Decimal
	AmountFilled decimal.Decimal
	FillPrice    decimal.Decimal
	Open         bool
}

// SignedFillDelta returns the filled amount signed by the order side:
// positive for a buy, negative for a sell.
func (o *OrderState) SignedFillDelta() decimal.Decimal {
	if o.Operation == OperationBuy {
		return o.AmountFilled
	}
	return o.AmountFilled.Neg()
}
