package brokerobs

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/trace"
	"squareoff-engine/internal/types"
)

// observableQuotes wraps a QuoteSource with observability (logging & tracing)
type observableQuotes struct {
	quotes interfaces.QuoteSource
}

// Compile-time interface check
var _ interfaces.QuoteSource = (*observableQuotes)(nil)

func Wrap(quotes interfaces.QuoteSource) interfaces.QuoteSource {
	return &observableQuotes{quotes: quotes}
}

// LastTradedPrice returns the last traded price with observability
func (oq *observableQuotes) LastTradedPrice(ctx context.Context, instrumentToken string) (decimal.Decimal, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LastTradedPrice")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching LTP", "instrument", instrumentToken)

	price, err := oq.quotes.LastTradedPrice(ctx, instrumentToken)
	if errors.Is(err, types.ErrQuoteUnavailable) {
		logger.WarnSkip(ctx, 1, "No quote available", "instrument", instrumentToken, "error", err.Error())
		return decimal.Zero, err
	}
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch LTP", err, "instrument", instrumentToken)
		return decimal.Zero, err
	}

	logger.DebugSkip(ctx, 1, "LTP fetched successfully", "instrument", instrumentToken, "price", price.String())
	return price, nil
}
