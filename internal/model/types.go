// Package model holds the value types shared across the SDK's internal
// packages: the dynamic field map every log/track record is built from,
// and the record shapes persisted by a Backend.
package model

import "time"

// Fields is a flexible field map: the payload of a log entry, a
// single track data point's user fields, or a file's user metadata.
type Fields map[string]interface{}

// Clone returns a shallow copy, safe to mutate without aliasing the
// caller's map.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DataPoint is one track record: `_ts` plus arbitrary user fields.
// TSKey is the reserved field name; callers never see this constant
// spelled out twice.
const TSKey = "_ts"

// TSInherit is the sentinel value meaning "reuse the session's most
// recently resolved timestamp."
const TSInherit = -1.0

// DataPoint is a field map representing a single point; as a Go map
// it has no key order.
// Stored as map[string]interface{} rather than a struct because a
// track's schema is caller-defined and varies point to point.
type DataPoint map[string]interface{}

// Timestamp returns the point's `_ts` field. Callers must have already
// resolved and validated it; this is a convenience accessor, not a
// resolver.
func (d DataPoint) Timestamp() float64 {
	v, _ := d[TSKey].(float64)
	return v
}

// Clone returns a shallow copy of the point.
func (d DataPoint) Clone() DataPoint {
	out := make(DataPoint, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// LogLevel enumerates the severities a LogRecord may carry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// ValidLogLevel reports whether lvl is one of the five recognized
// levels.
func ValidLogLevel(lvl LogLevel) bool {
	switch lvl {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// LogRecord is one append-only log line.
type LogRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Level          LogLevel  `json:"level"`
	Message        string    `json:"message"`
	Metadata       Fields    `json:"metadata,omitempty"`
	SequenceNumber uint64    `json:"sequenceNumber"`
}

// TrackMetadata describes a track's identity, independent of its
// contents.
type TrackMetadata struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"displayName,omitempty"`
	Description      string   `json:"description,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Metadata         Fields   `json:"metadata,omitempty"`
	TotalDataPoints  int64    `json:"totalDataPoints"`
	FirstTimestamp   *float64 `json:"firstTimestamp,omitempty"`
	LastTimestamp    *float64 `json:"lastTimestamp,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// FileArtifact is one uploaded file's metadata sidecar entry.
type FileArtifact struct {
	FileID      string    `json:"fileId"`
	Filename    string    `json:"filename"`
	Prefix      string    `json:"prefix"`
	SizeBytes   int64     `json:"sizeBytes"`
	Checksum    string    `json:"checksum"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Metadata    Fields    `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// SessionMetadata is the persisted session.json document.
type SessionMetadata struct {
	Namespace   string    `json:"namespace,omitempty"`
	Workspace   string    `json:"workspace"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Folder      string    `json:"folder,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SessionHandle is what a Backend hands back from UpsertSession: just
// enough identity for the Session to address subsequent calls.
type SessionHandle struct {
	ID        string
	Namespace string
	Workspace string
	Name      string
}

// TrackPage is the result of a read-by-index query.
type TrackPage struct {
	Total int64
	Items []IndexedPoint
}

// IndexedPoint pairs a logical index with its reconstructed point.
type IndexedPoint struct {
	Index int64
	Data  DataPoint
}

// TimeRangePage is the result of a read-by-time query.
type TimeRangePage struct {
	Items []IndexedPoint
}
