// Package sinks provides the progress sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/progress"
)

// LogSink writes a structured log line per event. Useful during
// development and for audits without a metrics backend.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch with structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.AppID != 0 {
			fields = append(fields, zap.Int64("app_id", evt.AppID))
		}
		if evt.Category != "" {
			fields = append(fields, zap.String("category", string(evt.Category)))
		}
		if evt.BatchSize > 0 {
			fields = append(fields,
				zap.Int("batch_size", evt.BatchSize),
				zap.Int("synced", evt.Synced))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
