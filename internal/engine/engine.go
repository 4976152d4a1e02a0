package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"squareoff-engine/internal/brokerage"
	"squareoff-engine/internal/calendar"
	"squareoff-engine/internal/events"
	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/types"
)

type Params struct {
	Calendar   *calendar.Calendar
	Store      interfaces.OrderStore
	Quotes     interfaces.QuoteSource
	Calculator brokerage.Calculator
	Clock      interfaces.Clock
	Events     interfaces.EventSink

	OrderTimeout time.Duration
	QuoteTimeout time.Duration
	StoreTimeout time.Duration
	// PublishTimeout bounds the settlement event publish. Zero uses
	// events.DefaultPublishTimeout.
	PublishTimeout time.Duration
}

// Engine settles one order at a time. It keeps no state between attempts.
type Engine struct {
	p Params
}

var _ interfaces.Executor = (*Engine)(nil)

func New(p Params) *Engine {
	if p.Clock == nil {
		p.Clock = interfaces.RealClock{}
	}
	return &Engine{p: p}
}

// Attempt re-validates the order, prices it and closes it with a conditional
// write. It never returns an error: every outcome is in the result.
func (e *Engine) Attempt(ctx context.Context, attempt types.Attempt, order types.Order) (res types.AttemptResult) {
	if e.p.OrderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.p.OrderTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error(ctx, "Recovered panic in squareoff attempt",
				"job", attempt.Job,
				"order_id", order.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			res = failed(attempt, order.ID, "panic", err)
		}
		e.report(ctx, res)
	}()

	return e.attempt(ctx, attempt, order)
}

func (e *Engine) attempt(ctx context.Context, a types.Attempt, order types.Order) types.AttemptResult {
	now := e.p.Clock.Now()
	if a.RequireTradingDay && !e.p.Calendar.IsTradingDay(now) {
		return skipped(a, order.ID, "non-trading day")
	}

	current, err := e.recheck(ctx, a, order.ID)
	if err != nil {
		return failed(a, order.ID, "recheck failed", err)
	}
	if current == nil {
		logger.Warn(ctx, "Order no longer eligible", "job", a.Job, "order_id", order.ID, "expect", a.Expect)
		return skipped(a, order.ID, "no longer eligible")
	}
	order = *current
	if order.Status == types.StatusClosed {
		return skipped(a, order.ID, "already closed")
	}

	if a.Action == types.ActionExpire {
		if due, reason := e.expiryDue(order, now); !due {
			return skipped(a, order.ID, reason)
		}
	}

	quote, source, err := e.exitQuote(ctx, order)
	if err != nil {
		return failed(a, order.ID, "no price", err)
	}

	exit := brokerage.ApplyJobbing(order.Side, quote, order.JobbingPercent)
	s := e.p.Calculator.Settle(brokerage.Input{
		Side:       order.Side,
		EntryPrice: order.EntryPrice,
		ExitPrice:  exit,
		Quantity:   order.Quantity,
	})

	closedAt := e.p.Clock.Now()
	err = e.withStoreTimeout(ctx, func(ctx context.Context) error {
		return e.p.Store.UpdateOrder(ctx, order.ID, types.OrderUpdate{
			ExpectStatuses: a.Expect,
			Status:         types.StatusClosed,
			ExitPrice:      exit,
			ClosedAt:       closedAt,
			CameFrom:       a.Origin,
		})
	})
	switch {
	case errors.Is(err, types.ErrStatusChanged), errors.Is(err, types.ErrNotFound):
		logger.Warn(ctx, "Order changed during squareoff", "job", a.Job, "order_id", order.ID, "error", err.Error())
		return skipped(a, order.ID, "status changed")
	case err != nil:
		return failed(a, order.ID, "update failed", err)
	}

	return types.AttemptResult{
		Job:         a.Job,
		OrderID:     order.ID,
		Outcome:     types.OutcomeClosed,
		Side:        order.Side,
		Quantity:    order.Quantity,
		EntryPrice:  order.EntryPrice,
		QuotePrice:  quote,
		ExitPrice:   exit,
		PriceSource: source,
		NetPnl:      s.NetPnl,
		Pct:         s.Pct,
		ClosedAt:    &closedAt,
	}
}

// recheck reloads the order under the attempt's status precondition. A nil
// order means it no longer qualifies.
func (e *Engine) recheck(ctx context.Context, a types.Attempt, id string) (*types.Order, error) {
	var orders []types.Order
	err := e.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		orders, err = e.p.Store.FindCandidates(ctx, types.Filter{ID: id, Statuses: a.Expect}, 1)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 || orders[0].ID != id {
		return nil, nil
	}
	return &orders[0], nil
}

// expiryDue closes an overnight order once the civil date of its expiry is
// behind today's civil date. Orders without an expiry never expire here.
func (e *Engine) expiryDue(order types.Order, now time.Time) (bool, string) {
	if order.ExpiresAt == nil {
		return false, "no expiry"
	}
	expiry := e.p.Calendar.CivilDate(*order.ExpiresAt)
	today := e.p.Calendar.CivilDate(now)
	if !expiry.Before(today) {
		return false, "not expired"
	}
	return true, ""
}

func (e *Engine) withStoreTimeout(ctx context.Context, fn func(context.Context) error) error {
	if e.p.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.p.StoreTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (e *Engine) report(ctx context.Context, res types.AttemptResult) {
	fields := []any{"reason", res.Reason}
	if res.Outcome == types.OutcomeClosed {
		fields = append(fields,
			"side", res.Side,
			"qty", res.Quantity,
			"entry_price", res.EntryPrice.String(),
			"exit_price", res.ExitPrice.String(),
			"price_source", res.PriceSource,
			"net_pnl", brokerage.Money(res.NetPnl).String(),
			"pct", brokerage.Money(res.Pct).String(),
		)
	}
	if res.Err != nil {
		fields = append(fields, "error", res.Err.Error())
	}
	logger.Settlement(ctx, res.Job, res.OrderID, string(res.Outcome), fields...)

	if e.p.Events == nil {
		return
	}
	event := types.Event{Kind: types.EventSettlement, Time: e.p.Clock.Now(), Attempt: &res}
	if err := events.Publish(ctx, e.p.Events, event, e.p.PublishTimeout); err != nil {
		logger.ErrorWithErr(ctx, "Failed to publish settlement event", err, "order_id", res.OrderID)
	}
}

func skipped(a types.Attempt, id, reason string) types.AttemptResult {
	return types.AttemptResult{Job: a.Job, OrderID: id, Outcome: types.OutcomeSkipped, Reason: reason}
}

func failed(a types.Attempt, id, reason string, err error) types.AttemptResult {
	return types.AttemptResult{
		Job:     a.Job,
		OrderID: id,
		Outcome: types.OutcomeFailed,
		Reason:  reason,
		Err:     err,
		Error:   err.Error(),
	}
}
