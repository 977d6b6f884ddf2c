package dreamlake

import "github.com/dreamlake-ai/dreamlake-go/internal/model"

// Fields is a free-form field map: a log's metadata, a track point's
// user fields, or a file's user metadata.
type Fields = model.Fields

// LogLevel is one of the five severities a log record may carry.
type LogLevel = model.LogLevel

const (
	LogLevelDebug = model.LogLevelDebug
	LogLevelInfo  = model.LogLevelInfo
	LogLevelWarn  = model.LogLevelWarn
	LogLevelError = model.LogLevelError
	LogLevelFatal = model.LogLevelFatal
)

// TrackMetadata describes a track's identity and point count,
// independent of its contents.
type TrackMetadata = model.TrackMetadata

// FileArtifact is one uploaded file's metadata sidecar entry.
type FileArtifact = model.FileArtifact

// TrackPage is the result of a read-by-index query.
type TrackPage = model.TrackPage

// TimeRangePage is the result of a read-by-time query.
type TimeRangePage = model.TimeRangePage

// IndexedPoint pairs a logical index with its reconstructed point.
type IndexedPoint = model.IndexedPoint

// SessionHandle is the backend-assigned identity for an open session.
type SessionHandle = model.SessionHandle
