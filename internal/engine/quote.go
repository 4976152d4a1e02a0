package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/types"
)

// exitQuote prefers a live quote and falls back to the order's last known
// price. Both missing is an error.
func (e *Engine) exitQuote(ctx context.Context, order types.Order) (decimal.Decimal, string, error) {
	if e.p.Quotes != nil && order.InstrumentToken != "" {
		qctx := ctx
		if e.p.QuoteTimeout > 0 {
			var cancel context.CancelFunc
			qctx, cancel = context.WithTimeout(ctx, e.p.QuoteTimeout)
			defer cancel()
		}
		price, err := e.p.Quotes.LastTradedPrice(qctx, order.InstrumentToken)
		if err == nil && price.IsPositive() {
			return price, types.PriceSourceQuote, nil
		}
		if err != nil {
			logger.Debug(ctx, "Live quote unavailable, using last price",
				"order_id", order.ID,
				"instrument", order.InstrumentToken,
				"error", err.Error(),
			)
		}
	}

	if order.LastPrice.IsPositive() {
		return order.LastPrice, types.PriceSourceLastPrice, nil
	}
	return decimal.Zero, "", fmt.Errorf("order %s: %w", order.ID, types.ErrQuoteUnavailable)
}
