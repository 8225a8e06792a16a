package eodobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/logger"
	"options-momentum-bot/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

// Wrap traces every summary run and logs where the CSV landed.
func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{summarizer: summarizer}
}

// summarize runs fn inside a span named op. An empty path means the day had
// no trades and is logged at info, not as a failure.
func (oes *observableEodSummarizer) summarize(op, date string, fn func() (string, error)) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), op)
	defer span.End()
	if date != "" {
		span.SetAttributes(attribute.String("eod.date", date))
	}

	start := time.Now()
	csvPath, err := fn()
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err != nil:
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err, "date", date, "duration_ms", elapsed)
		return "", err
	case csvPath == "":
		logger.InfoSkip(ctx, 2, "EOD summary skipped, no trades", "date", date)
	default:
		span.SetAttributes(attribute.String("eod.csv_path", csvPath))
		logger.InfoSkip(ctx, 2, "EOD summary written", "date", date, "csv_path", csvPath, "duration_ms", elapsed)
	}
	return csvPath, nil
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	return oes.summarize("eod.SummarizeDay", t.Format("2006-01-02"), func() (string, error) {
		return oes.summarizer.SummarizeDay(t)
	})
}

func (oes *observableEodSummarizer) SummarizeToday() (string, error) {
	return oes.summarize("eod.SummarizeToday", "", oes.summarizer.SummarizeToday)
}

func (oes *observableEodSummarizer) ShouldRunNow() (bool, string) {
	due, csvPath := oes.summarizer.ShouldRunNow()
	if due {
		logger.DebugSkip(context.Background(), 1, "EOD summary due", "csv_path", csvPath)
	}
	return due, csvPath
}
