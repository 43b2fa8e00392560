package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/progress"
)

// LogSink emits structured logs for debugging progress streams.
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

// Consume logs each event in the batch using structured fields. Item-level
// events log at debug so long runs stay readable at info.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("source_id", evt.SourceID),
			zap.Int("index", evt.Index),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.RecordID != "" {
			fields = append(fields, zap.String("movie_id", evt.RecordID))
		}
		if evt.Reason != "" {
			fields = append(fields, zap.String("reason", evt.Reason))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageItemStored, progress.StageItemDuplicate, progress.StageCheckpoint:
			s.logger.Debug("progress event", fields...)
		case progress.StageItemFailed, progress.StageSourceFailed, progress.StageRunError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
