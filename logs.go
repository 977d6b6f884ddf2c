package dreamlake

import (
	"context"
	"time"

	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
	"github.com/dreamlake-ai/dreamlake-go/internal/model"
)

// Log appends a log record at level with optional metadata, assigning
// the next sequence number under the session lock. Sequence numbers
// start at 0 for a fresh session and continue for a resumed one.
func (s *Session) Log(level model.LogLevel, message string, metadata model.Fields) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !model.ValidLogLevel(level) {
		return dlerrors.Invalid("invalid log level %q", level)
	}

	s.mu.Lock()
	seq := s.nextLogSequenceLocked()
	s.mu.Unlock()

	record := model.LogRecord{
		Timestamp:      time.Now(),
		Level:          level,
		Message:        message,
		Metadata:       metadata,
		SequenceNumber: seq,
	}

	if err := s.backend.AppendLogs(context.Background(), s.handle, []model.LogRecord{record}); err != nil {
		return err
	}
	s.metrics.LogAppendsTotal.Inc()
	return nil
}

// LogBuilder is the fluent entry point for leveled logging, mirroring
// the original implementation's session.logs property (ML-Dash
// compatible): session.Logs().Info("message") rather than
// session.Log(LogLevelInfo, "message", nil).
type LogBuilder struct {
	session  *Session
	metadata model.Fields
}

// Logs returns a LogBuilder carrying no base metadata.
func (s *Session) Logs() *LogBuilder {
	return &LogBuilder{session: s}
}

// With returns a LogBuilder that merges metadata into every record it
// emits, letting callers attach shared context once:
//
//	session.Logs().With(dreamlake.Fields{"epoch": 3}).Info("checkpoint saved")
func (b *LogBuilder) With(metadata model.Fields) *LogBuilder {
	merged := make(model.Fields, len(b.metadata)+len(metadata))
	for k, v := range b.metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	return &LogBuilder{session: b.session, metadata: merged}
}

// mergedMetadata folds fields left-to-right on top of the builder's
// own base metadata, so a per-call field can override a value attached
// earlier via With without mutating the builder itself.
func (b *LogBuilder) mergedMetadata(fields []model.Fields) model.Fields {
	if len(fields) == 0 {
		return b.metadata
	}
	merged := make(model.Fields, len(b.metadata))
	for k, v := range b.metadata {
		merged[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}

func (b *LogBuilder) Debug(message string, fields ...model.Fields) error {
	return b.session.Log(model.LogLevelDebug, message, b.mergedMetadata(fields))
}
func (b *LogBuilder) Info(message string, fields ...model.Fields) error {
	return b.session.Log(model.LogLevelInfo, message, b.mergedMetadata(fields))
}
func (b *LogBuilder) Warn(message string, fields ...model.Fields) error {
	return b.session.Log(model.LogLevelWarn, message, b.mergedMetadata(fields))
}
func (b *LogBuilder) Error(message string, fields ...model.Fields) error {
	return b.session.Log(model.LogLevelError, message, b.mergedMetadata(fields))
}
func (b *LogBuilder) Fatal(message string, fields ...model.Fields) error {
	return b.session.Log(model.LogLevelFatal, message, b.mergedMetadata(fields))
}
