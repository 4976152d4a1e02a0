package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action int

const (
	// ActionSquareoff closes the order unconditionally at the current price.
	ActionSquareoff Action = iota
	// ActionExpire closes the order only once its instrument has expired.
	ActionExpire
)

func (a Action) String() string {
	if a == ActionExpire {
		return "EXPIRE"
	}
	return "SQUAREOFF"
}

// Attempt tells the executor how to treat one candidate.
type Attempt struct {
	Job               string
	Action            Action
	Origin            Origin
	Expect            []Status
	RequireTradingDay bool
}

type Outcome string

const (
	OutcomeClosed  Outcome = "CLOSED"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeFailed  Outcome = "FAILED"
)

const (
	PriceSourceQuote     = "LTP"
	PriceSourceLastPrice = "LAST_PRICE"
)

type AttemptResult struct {
	Job         string          `json:"job"`
	OrderID     string          `json:"order_id"`
	Outcome     Outcome         `json:"outcome"`
	Reason      string          `json:"reason,omitempty"`
	Side        Side            `json:"side,omitempty"`
	Quantity    int             `json:"quantity,omitempty"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	QuotePrice  decimal.Decimal `json:"quote_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	PriceSource string          `json:"price_source,omitempty"`
	NetPnl      decimal.Decimal `json:"net_pnl"`
	Pct         decimal.Decimal `json:"pct"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Err         error           `json:"-"`
}
