package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/download-simulator/internal/telemetry"
)

// LogSink writes one structured log line per record.
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

// Consume logs each record in the batch. ADVANCED records go to debug so a
// busy run does not flood the info level.
func (s *LogSink) Consume(_ context.Context, batch []telemetry.Record) error {
	for _, rec := range batch {
		fields := []zap.Field{
			zap.String("run_id", rec.RunID.String()),
			zap.String("download_id", rec.DownloadID),
			zap.String("stage", string(rec.Stage)),
			zap.Time("ts", rec.TS),
		}
		switch rec.Stage {
		case telemetry.StageAdvanced:
			s.logger.Debug("download progress", append(fields, zap.Float64("percent", rec.Percent))...)
		case telemetry.StageFinished:
			s.logger.Info("download finished", append(fields, zap.Duration("elapsed", rec.Elapsed))...)
		default:
			s.logger.Info("download started", append(fields, zap.String("url", rec.URL))...)
		}
	}
	return nil
}

// Close flushes the logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
