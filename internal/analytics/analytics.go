package analytics

import (
	"context"
	"log/slog"
)

// Sink receives one data point per report record. Implementations must be
// safe for concurrent use.
type Sink interface {
	WriteRow(ctx context.Context, indexes []string, blobs []string, doubles []float64) error
}

// LogSink writes data points to a logger, used when no real sink is
// available
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) WriteRow(ctx context.Context, indexes []string, blobs []string, doubles []float64) error {
	l.logger.InfoContext(ctx, "data point",
		slog.Any("indexes", indexes),
		slog.Any("blobs", blobs),
		slog.Any("doubles", doubles),
	)
	return nil
}
