package interfaces

import (
	"context"

	"squareoff-engine/internal/types"
)

// OrderStore is the engine's only access to persisted orders. Implementations
// normalize raw records into types.Order before returning them.
type OrderStore interface {
	// FindCandidates returns at most limit orders matching filter.
	FindCandidates(ctx context.Context, filter types.Filter, limit int) ([]types.Order, error)

	// UpdateOrder applies a single-order write. It returns types.ErrNotFound for
	// an unknown id and types.ErrStatusChanged when ExpectStatuses does not match.
	UpdateOrder(ctx context.Context, id string, update types.OrderUpdate) error
}
