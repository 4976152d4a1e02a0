package interfaces

import (
	"context"

	"squareoff-engine/internal/types"
)

// EventSink receives job-run and settlement events. Publish failures are
// reported to the caller but never change settlement outcomes.
type EventSink interface {
	Publish(ctx context.Context, event types.Event) error
}
