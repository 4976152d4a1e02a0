package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteSource returns the last traded price for an instrument token, or
// types.ErrQuoteUnavailable when there is no usable quote.
type QuoteSource interface {
	LastTradedPrice(ctx context.Context, instrumentToken string) (decimal.Decimal, error)
}
