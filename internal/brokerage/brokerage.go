// Package brokerage computes brokerage-adjusted P&L for a position. It backs
// both final settlement and live previews, so it never fails: missing or
// invalid inputs are treated as zero.
package brokerage

import (
	"math"

	"github.com/shopspring/decimal"

	"squareoff-engine/internal/types"
)

// DefaultRate is 0.01% per leg.
var DefaultRate = decimal.RequireFromString("0.0001")

var hundred = decimal.NewFromInt(100)

type Calculator struct {
	Rate decimal.Decimal
}

func New(rate decimal.Decimal) Calculator {
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	return Calculator{Rate: rate}
}

// Input describes one position. ExitPrice is ignored by Preview, which uses
// CurrentPrice instead.
type Input struct {
	Side         types.Side
	EntryPrice   decimal.Decimal
	ExitPrice    decimal.Decimal
	CurrentPrice decimal.Decimal
	Quantity     int
}

// Settlement keeps full precision; use Money for display.
type Settlement struct {
	GrossPnl       decimal.Decimal
	EntryValue     decimal.Decimal
	ExitValue      decimal.Decimal
	BrokerageEntry decimal.Decimal
	BrokerageExit  decimal.Decimal
	TotalBrokerage decimal.Decimal
	NetPnl         decimal.Decimal
	Pct            decimal.Decimal
}

// Settle charges brokerage on both legs.
func (c Calculator) Settle(in Input) Settlement {
	return c.compute(in.Side, in.EntryPrice, in.ExitPrice, in.Quantity, true)
}

// Preview charges only the entry leg, for an open position valued at CurrentPrice.
func (c Calculator) Preview(in Input) Settlement {
	return c.compute(in.Side, in.EntryPrice, in.CurrentPrice, in.Quantity, false)
}

func (c Calculator) compute(side types.Side, entry, exit decimal.Decimal, qty int, exitLeg bool) Settlement {
	entry = nonNegative(entry)
	exit = nonNegative(exit)
	q := decimal.NewFromInt(int64(max(qty, 0)))
	rate := nonNegative(c.Rate)

	var s Settlement
	if side == types.SideSell {
		s.GrossPnl = entry.Sub(exit).Mul(q)
	} else {
		s.GrossPnl = exit.Sub(entry).Mul(q)
	}
	s.EntryValue = entry.Mul(q)
	s.ExitValue = exit.Mul(q)
	s.BrokerageEntry = s.EntryValue.Mul(rate)
	s.TotalBrokerage = s.BrokerageEntry
	if exitLeg {
		s.BrokerageExit = s.ExitValue.Mul(rate)
		s.TotalBrokerage = s.TotalBrokerage.Add(s.BrokerageExit)
	}
	s.NetPnl = s.GrossPnl.Sub(s.TotalBrokerage)
	if s.EntryValue.IsPositive() {
		s.Pct = s.NetPnl.Div(s.EntryValue).Mul(hundred)
	}
	return s
}

// ApplyJobbing skews a quoted exit price against the client by pct percent:
// down for BUY positions, up for SELL positions.
func ApplyJobbing(side types.Side, price, pct decimal.Decimal) decimal.Decimal {
	price = nonNegative(price)
	if !price.IsPositive() || pct.IsZero() {
		return price
	}
	skew := price.Mul(pct).Div(hundred)
	if side == types.SideSell {
		return price.Add(skew)
	}
	return price.Sub(skew)
}

// FromFloat converts untrusted float input, mapping NaN and infinities to zero.
func FromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Money rounds to two decimals for presentation.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
