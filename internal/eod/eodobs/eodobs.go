package eodobs

import (
	"context"
	"time"

	"squareoff-engine/internal/interfaces"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{summarizer: summarizer}
}

func (oes *observableEodSummarizer) SummarizeDay(ctx context.Context, day time.Time) (string, error) {
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeDay")
	defer span.End()

	date := day.Format("2006-01-02")
	csvPath, err := oes.summarizer.SummarizeDay(ctx, day)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary generation failed", err, "date", date)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No journal for EOD summary", "date", date)
		return "", nil
	}
	logger.InfoSkip(ctx, 1, "EOD summary generated", "date", date, "csv_path", csvPath)
	return csvPath, nil
}
