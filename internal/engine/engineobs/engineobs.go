package engineobs

import (
	"context"
	"time"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/trace"
	"squareoff-engine/internal/types"
)

type observableExecutor struct {
	executor interfaces.Executor
}

var _ interfaces.Executor = (*observableExecutor)(nil)

func Wrap(exec interfaces.Executor) interfaces.Executor {
	return &observableExecutor{
		executor: exec,
	}
}

func (oe *observableExecutor) Attempt(ctx context.Context, attempt types.Attempt, order types.Order) types.AttemptResult {
	ctx, span := trace.StartSpan(ctx, "engine.Attempt")
	defer span.End()

	start := time.Now()

	logger.DebugSkip(ctx, 1, "Starting squareoff attempt",
		"job", attempt.Job,
		"action", attempt.Action.String(),
		"order_id", order.ID,
		"segment", order.Segment,
		"status", order.Status.String(),
	)

	res := oe.executor.Attempt(ctx, attempt, order)
	if res.Outcome == types.OutcomeFailed {
		logger.ErrorWithErrSkip(ctx, 1, "Squareoff attempt failed", res.Err,
			"job", attempt.Job,
			"order_id", order.ID,
			"reason", res.Reason,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res
	}

	logger.DebugSkip(ctx, 1, "Squareoff attempt completed",
		"job", attempt.Job,
		"order_id", order.ID,
		"outcome", res.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}
