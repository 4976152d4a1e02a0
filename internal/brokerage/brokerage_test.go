package brokerage

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"squareoff-engine/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", msg, want, got)
}

func TestSettleBuy(t *testing.T) {
	s := New(DefaultRate).Settle(Input{Side: types.SideBuy, EntryPrice: d("100"), ExitPrice: d("110"), Quantity: 10})

	assertDec(t, "100", s.GrossPnl, "gross")
	assertDec(t, "1000", s.EntryValue, "entry value")
	assertDec(t, "1100", s.ExitValue, "exit value")
	assertDec(t, "0.1", s.BrokerageEntry, "entry brokerage")
	assertDec(t, "0.11", s.BrokerageExit, "exit brokerage")
	assertDec(t, "0.21", s.TotalBrokerage, "total brokerage")
	assertDec(t, "99.79", s.NetPnl, "net")
	assertDec(t, "9.979", s.Pct, "pct")
}

func TestSettleSell(t *testing.T) {
	s := New(DefaultRate).Settle(Input{Side: types.SideSell, EntryPrice: d("100"), ExitPrice: d("110"), Quantity: 10})

	assertDec(t, "-100", s.GrossPnl, "gross")
	assertDec(t, "-100.21", s.NetPnl, "net")
	assertDec(t, "-10.021", s.Pct, "pct")
}

func TestPreviewChargesEntryLegOnly(t *testing.T) {
	s := New(DefaultRate).Preview(Input{Side: types.SideBuy, EntryPrice: d("100"), CurrentPrice: d("110"), Quantity: 10})

	assertDec(t, "0.1", s.TotalBrokerage, "total brokerage")
	assertDec(t, "0", s.BrokerageExit, "exit brokerage")
	assertDec(t, "99.9", s.NetPnl, "net")
}

func TestZeroEntryPriceYieldsZeroPct(t *testing.T) {
	var s Settlement
	assert.NotPanics(t, func() {
		s = New(DefaultRate).Settle(Input{Side: types.SideBuy, EntryPrice: decimal.Zero, ExitPrice: d("50"), Quantity: 2})
	})
	assertDec(t, "0", s.Pct, "pct")
	assertDec(t, "100", s.GrossPnl, "gross")
}

func TestInvalidInputsCoercedToZero(t *testing.T) {
	c := New(DefaultRate)
	s := c.Settle(Input{Side: types.SideBuy, EntryPrice: FromFloat(math.NaN()), ExitPrice: d("-5"), Quantity: -3})
	assertDec(t, "0", s.NetPnl, "net")
	assertDec(t, "0", s.Pct, "pct")

	s = c.Settle(Input{})
	assertDec(t, "0", s.NetPnl, "empty input")

	assertDec(t, "0", FromFloat(math.Inf(1)), "inf")
	assertDec(t, "0", New(d("-1")).Rate, "negative rate")
}

func TestApplyJobbing(t *testing.T) {
	assertDec(t, "99.5", ApplyJobbing(types.SideBuy, d("100"), d("0.5")), "buy")
	assertDec(t, "100.5", ApplyJobbing(types.SideSell, d("100"), d("0.5")), "sell")
	assertDec(t, "100", ApplyJobbing(types.SideBuy, d("100"), decimal.Zero), "no jobbing")
	assertDec(t, "0", ApplyJobbing(types.SideSell, decimal.Zero, d("0.5")), "zero price")
}

func TestMoney(t *testing.T) {
	assertDec(t, "9.98", Money(d("9.979")), "round")
	assertDec(t, "-100.21", Money(d("-100.2149")), "negative")
}
