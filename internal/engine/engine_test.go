package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squareoff-engine/internal/brokerage"
	"squareoff-engine/internal/calendar"
	"squareoff-engine/internal/orderstore/memory"
	"squareoff-engine/internal/types"
)

var ist = time.FixedZone("IST", 19800)

// Friday 16 Oct 2026, 15:15 IST.
var friday = time.Date(2026, 10, 16, 15, 15, 0, 0, ist)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time                         { return c.now }
func (c fixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  int
	panics bool
}

func (f *fakeQuotes) LastTradedPrice(_ context.Context, token string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("quote feed exploded")
	}
	if p, ok := f.prices[token]; ok {
		return p, nil
	}
	return decimal.Zero, types.ErrQuoteUnavailable
}

type recordingSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordingSink) Publish(_ context.Context, e types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	store  *memory.Store
	quotes *fakeQuotes
	sink   *recordingSink
	engine *Engine
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	cal, err := calendar.New(ist, []string{"2026-10-20"}, calendar.DefaultSession())
	require.NoError(t, err)

	f := &fixture{
		store:  memory.New(),
		quotes: &fakeQuotes{prices: map[string]decimal.Decimal{}},
		sink:   &recordingSink{},
	}
	f.engine = New(Params{
		Calendar:     cal,
		Store:        f.store,
		Quotes:       f.quotes,
		Calculator:   brokerage.New(brokerage.DefaultRate),
		Clock:        fixedClock{now: now},
		Events:       f.sink,
		OrderTimeout: time.Second,
		QuoteTimeout: 100 * time.Millisecond,
		StoreTimeout: 100 * time.Millisecond,
	})
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intradayOrder(id string) types.Order {
	return types.Order{
		ID:              id,
		Category:        types.CategoryIntraday,
		Segment:         "NSE-EQ",
		Side:            types.SideBuy,
		InstrumentToken: "tok-" + id,
		Lots:            1,
		LotSize:         10,
		Quantity:        10,
		EntryPrice:      dec("90"),
		LastPrice:       dec("95"),
		Status:          types.StatusOpen,
		CreatedAt:       friday.Add(-time.Hour),
	}
}

func squareoff() types.Attempt {
	return types.Attempt{
		Job:               "intraday_squareoff",
		Action:            types.ActionSquareoff,
		Origin:            types.NewOrigin(types.OriginIntradaySquareoff),
		Expect:            []types.Status{types.StatusOpen},
		RequireTradingDay: true,
	}
}

func TestAttemptClosesWithJobbing(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("o1")
	o.JobbingPercent = dec("0.5")
	require.NoError(t, f.store.Insert(context.Background(), o))
	f.quotes.prices["tok-o1"] = dec("100")

	res := f.engine.Attempt(context.Background(), squareoff(), o)

	require.Equal(t, types.OutcomeClosed, res.Outcome, res.Reason)
	assert.True(t, dec("99.5").Equal(res.ExitPrice), res.ExitPrice.String())
	assert.True(t, dec("100").Equal(res.QuotePrice))
	assert.Equal(t, types.PriceSourceQuote, res.PriceSource)

	want := brokerage.New(brokerage.DefaultRate).Settle(brokerage.Input{
		Side: types.SideBuy, EntryPrice: dec("90"), ExitPrice: dec("99.5"), Quantity: 10,
	})
	assert.True(t, want.NetPnl.Equal(res.NetPnl))

	got, err := f.store.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, got.IsClosed())
	assert.True(t, dec("99.5").Equal(got.ExitPrice.Decimal))
	assert.Equal(t, types.OriginIntradaySquareoff, got.CameFrom.Kind)
	assert.True(t, friday.Equal(*got.ClosedAt))
	assert.True(t, dec("90").Equal(got.EntryPrice), "entry price is never written")

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, types.EventSettlement, f.sink.events[0].Kind)
	assert.Equal(t, "o1", f.sink.events[0].Attempt.OrderID)
}

func TestAttemptSellJobbingSkewsUp(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("s1")
	o.Side = types.SideSell
	o.JobbingPercent = dec("0.5")
	require.NoError(t, f.store.Insert(context.Background(), o))
	f.quotes.prices["tok-s1"] = dec("100")

	res := f.engine.Attempt(context.Background(), squareoff(), o)
	require.Equal(t, types.OutcomeClosed, res.Outcome)
	assert.True(t, dec("100.5").Equal(res.ExitPrice))
}

func TestAttemptIsIdempotent(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("o1")
	require.NoError(t, f.store.Insert(context.Background(), o))
	f.quotes.prices["tok-o1"] = dec("100")

	first := f.engine.Attempt(context.Background(), squareoff(), o)
	require.Equal(t, types.OutcomeClosed, first.Outcome)
	before, _ := f.store.Get(context.Background(), "o1")

	second := f.engine.Attempt(context.Background(), squareoff(), o)
	assert.Equal(t, types.OutcomeSkipped, second.Outcome)
	assert.Nil(t, second.Err)
	assert.Equal(t, 1, f.store.Updates())

	after, _ := f.store.Get(context.Background(), "o1")
	assert.Equal(t, before, after)
}

func TestAttemptSkipsNonTradingDay(t *testing.T) {
	for name, now := range map[string]time.Time{
		"saturday": time.Date(2026, 10, 17, 15, 15, 0, 0, ist),
		"holiday":  time.Date(2026, 10, 20, 15, 15, 0, 0, ist),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, now)
			o := intradayOrder("o1")
			require.NoError(t, f.store.Insert(context.Background(), o))
			f.quotes.prices["tok-o1"] = dec("100")

			res := f.engine.Attempt(context.Background(), squareoff(), o)
			assert.Equal(t, types.OutcomeSkipped, res.Outcome)
			assert.Equal(t, 0, f.store.Updates())
			assert.Equal(t, 0, f.quotes.calls)
		})
	}
}

func TestAttemptFallsBackToLastPrice(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("o1")
	require.NoError(t, f.store.Insert(context.Background(), o))

	res := f.engine.Attempt(context.Background(), squareoff(), o)
	require.Equal(t, types.OutcomeClosed, res.Outcome)
	assert.Equal(t, types.PriceSourceLastPrice, res.PriceSource)
	assert.True(t, dec("95").Equal(res.ExitPrice))
}

func TestAttemptFailsWithoutAnyPrice(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("o1")
	o.LastPrice = decimal.Zero
	require.NoError(t, f.store.Insert(context.Background(), o))

	res := f.engine.Attempt(context.Background(), squareoff(), o)
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.True(t, errors.Is(res.Err, types.ErrQuoteUnavailable))

	got, _ := f.store.Get(context.Background(), "o1")
	assert.Equal(t, types.StatusOpen, got.Status)
	assert.False(t, got.ExitPrice.Valid)
}

func TestAttemptRecoversPanic(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("o1")
	require.NoError(t, f.store.Insert(context.Background(), o))
	f.quotes.panics = true

	var res types.AttemptResult
	require.NotPanics(t, func() { res = f.engine.Attempt(context.Background(), squareoff(), o) })
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "quote feed exploded")
	assert.Len(t, f.sink.events, 1)
}

// racingStore moves the order to HOLD right after the recheck, so the
// conditional write that follows loses.
type racingStore struct {
	*memory.Store
}

func (r racingStore) FindCandidates(ctx context.Context, filter types.Filter, limit int) ([]types.Order, error) {
	orders, err := r.Store.FindCandidates(ctx, filter, limit)
	if err != nil || len(orders) == 0 {
		return orders, err
	}
	hold := types.OrderUpdate{Status: types.StatusHold}
	if err := r.Store.UpdateOrder(ctx, orders[0].ID, hold); err != nil {
		return nil, err
	}
	return orders, nil
}

func TestAttemptLosesPreconditionRace(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("o1")
	require.NoError(t, f.store.Insert(context.Background(), o))
	f.engine.p.Store = racingStore{f.store}

	res := f.engine.Attempt(context.Background(), squareoff(), o)
	assert.Equal(t, types.OutcomeSkipped, res.Outcome)

	got, _ := f.store.Get(context.Background(), "o1")
	assert.Equal(t, types.StatusHold, got.Status)
	assert.False(t, got.ExitPrice.Valid)
}

func TestAttemptSkipsOrderChangedBeforeRecheck(t *testing.T) {
	f := newFixture(t, friday)
	o := intradayOrder("o1")
	o.Status = types.StatusHold
	require.NoError(t, f.store.Insert(context.Background(), o))

	// The caller still holds the stale OPEN copy.
	stale := o
	stale.Status = types.StatusOpen
	res := f.engine.Attempt(context.Background(), squareoff(), stale)
	assert.Equal(t, types.OutcomeSkipped, res.Outcome)
	assert.Equal(t, 0, f.store.Updates())
}

func expireAttempt() types.Attempt {
	return types.Attempt{
		Job:    "midnight_cleanup",
		Action: types.ActionExpire,
		Origin: types.NewOrigin(types.OriginOvernightExpiry),
		Expect: []types.Status{types.StatusUnset, types.StatusOpen, types.StatusHold},
	}
}

func TestExpiryEvaluation(t *testing.T) {
	midnight := time.Date(2026, 10, 17, 0, 2, 0, 0, ist)
	yesterday := time.Date(2026, 10, 16, 15, 30, 0, 0, ist)
	today := time.Date(2026, 10, 17, 15, 30, 0, 0, ist)
	// 18:30 UTC on the 16th is midnight of the 17th in IST.
	todayUTC := time.Date(2026, 10, 16, 18, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		expiry  *time.Time
		outcome types.Outcome
	}{
		{"expired yesterday", &yesterday, types.OutcomeClosed},
		{"expires today", &today, types.OutcomeSkipped},
		{"expires today in UTC", &todayUTC, types.OutcomeSkipped},
		{"no expiry", nil, types.OutcomeSkipped},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, midnight)
			o := intradayOrder("n1")
			o.Category = types.CategoryOvernight
			o.Status = types.StatusUnset
			o.ExpiresAt = tc.expiry
			require.NoError(t, f.store.Insert(context.Background(), o))

			res := f.engine.Attempt(context.Background(), expireAttempt(), o)
			assert.Equal(t, tc.outcome, res.Outcome, res.Reason)
			if tc.outcome == types.OutcomeClosed {
				got, _ := f.store.Get(context.Background(), "n1")
				assert.Equal(t, types.OriginOvernightExpiry, got.CameFrom.Kind)
			}
		})
	}
}

func TestOneBadQuoteDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, friday)
	for i := 0; i < 10; i++ {
		o := intradayOrder(fmt.Sprintf("o%d", i))
		if i == 4 {
			o.LastPrice = decimal.Zero
		} else {
			f.quotes.prices[o.InstrumentToken] = dec("100")
		}
		require.NoError(t, f.store.Insert(context.Background(), o))
	}

	orders, err := f.store.FindCandidates(context.Background(), types.Filter{Statuses: []types.Status{types.StatusOpen}}, 100)
	require.NoError(t, err)
	closed, failedCount := 0, 0
	for _, o := range orders {
		switch f.engine.Attempt(context.Background(), squareoff(), o).Outcome {
		case types.OutcomeClosed:
			closed++
		case types.OutcomeFailed:
			failedCount++
		}
	}
	assert.Equal(t, 9, closed)
	assert.Equal(t, 1, failedCount)

	got, _ := f.store.Get(context.Background(), "o4")
	assert.Equal(t, types.StatusOpen, got.Status)
}

type stallingSink struct{}

func (stallingSink) Publish(ctx context.Context, _ types.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledSinkIsBoundedAfterSettlement(t *testing.T) {
	f := newFixture(t, friday)
	f.engine.p.Events = stallingSink{}
	f.engine.p.PublishTimeout = 50 * time.Millisecond
	o := intradayOrder("o1")
	require.NoError(t, f.store.Insert(context.Background(), o))
	f.quotes.prices["tok-o1"] = dec("100")

	start := time.Now()
	res := f.engine.Attempt(context.Background(), squareoff(), o)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, types.OutcomeClosed, res.Outcome, res.Reason)

	got, err := f.store.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, got.IsClosed())
}
