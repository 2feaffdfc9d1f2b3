// Package sinks provides progress.Sink implementations for logging and
// metrics export.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/progress"
)

// LogSink emits structured logs for the progress stream.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Time("ts", evt.TS),
			zap.String("kind", string(evt.Kind)),
		}
		if evt.State != "" {
			fields = append(fields, zap.String("state", evt.State))
		}
		if evt.Record != nil {
			fields = append(fields,
				zap.String("record_id", evt.Record.ID),
				zap.String("url", evt.Record.URL),
				zap.String("status", string(evt.Record.Status)),
			)
		}
		if evt.Message != "" {
			fields = append(fields, zap.String("message", evt.Message))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
