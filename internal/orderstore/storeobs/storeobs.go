package storeobs

import (
	"context"
	"errors"
	"time"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/trace"
	"squareoff-engine/internal/types"
)

// observableStore wraps an OrderStore with spans and structured logs.
type observableStore struct {
	store interfaces.OrderStore
}

var _ interfaces.OrderStore = (*observableStore)(nil)

func Wrap(store interfaces.OrderStore) interfaces.OrderStore {
	return &observableStore{store: store}
}

func (s *observableStore) FindCandidates(ctx context.Context, filter types.Filter, limit int) ([]types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "store.FindCandidates")
	defer span.End()

	start := time.Now()
	orders, err := s.store.FindCandidates(ctx, filter, limit)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Candidate query failed", err,
			"category", filter.Category,
			"statuses", filter.Statuses,
			"segment_prefix", filter.SegmentPrefix,
			"exclude_prefix", filter.ExcludeSegmentPrefix,
		)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Candidates fetched",
		"id", filter.ID,
		"category", filter.Category,
		"count", len(orders),
		"limit", limit,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return orders, nil
}

func (s *observableStore) UpdateOrder(ctx context.Context, id string, update types.OrderUpdate) error {
	ctx, span := trace.StartSpan(ctx, "store.UpdateOrder")
	defer span.End()

	err := s.store.UpdateOrder(ctx, id, update)
	switch {
	case errors.Is(err, types.ErrStatusChanged):
		logger.WarnSkip(ctx, 1, "Order changed before update", "order_id", id, "expect", update.ExpectStatuses)
		return err
	case err != nil:
		logger.ErrorWithErrSkip(ctx, 1, "Order update failed", err, "order_id", id)
		return err
	}

	logger.DebugSkip(ctx, 1, "Order updated",
		"order_id", id,
		"status", update.Status,
		"exit_price", update.ExitPrice.String(),
		"came_from", update.CameFrom.String(),
	)
	return nil
}
