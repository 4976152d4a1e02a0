package interfaces

import (
	"context"

	"squareoff-engine/internal/types"
)

type Executor interface {
	Attempt(ctx context.Context, attempt types.Attempt, order types.Order) types.AttemptResult
}
