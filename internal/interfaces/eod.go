package interfaces

import (
	"context"
	"time"
)

// EodSummarizer condenses one journal day into a report file.
type EodSummarizer interface {
	// SummarizeDay returns the report path, or "" when the day has no
	// journal.
	SummarizeDay(ctx context.Context, day time.Time) (string, error)
}
