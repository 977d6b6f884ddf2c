// Package backend defines the storage abstraction a Session drives:
// a narrow interface with two implementations, LocalBackend (a
// filesystem tree) and RemoteBackend (an HTTP client). Grounded on the
// "trait/interface + two concrete implementations, no inheritance
// needed" note in spec.md §9, and on how the teacher's
// service.StorageService sits behind a narrow interface its handler
// consumes without knowing whether storage is local disk or a remote
// coordinator-routed node.
package backend

import (
	"context"

	"github.com/dreamlake-ai/dreamlake-go/internal/model"
)

// UpsertSessionRequest is the input to Backend.UpsertSession.
type UpsertSessionRequest struct {
	Namespace   string
	Workspace   string
	Name        string
	Description string
	Tags        []string
	Folder      string
}

// UploadFileRequest is the input to Backend.UploadFile.
type UploadFileRequest struct {
	SourcePath  string
	Prefix      string
	Description string
	Tags        []string
	Metadata    model.Fields
}

// FileUpdate describes a partial update to a file's metadata; nil
// fields are left unchanged.
type FileUpdate struct {
	Description *string
	Tags        []string
	Metadata    model.Fields
}

// Backend is the persistence driver a Session talks to. Every method
// may fail with a *dlerrors.Error; the Session is responsible for
// buffering and sequencing, the Backend is not required to buffer
// anything itself.
type Backend interface {
	// UpsertSession creates the session if absent, otherwise
	// continues using the existing one, returning a handle for all
	// subsequent calls.
	UpsertSession(ctx context.Context, req UpsertSessionRequest) (*model.SessionHandle, error)

	// AppendLogs appends already-sequenced log records.
	AppendLogs(ctx context.Context, handle *model.SessionHandle, records []model.LogRecord) error

	// ReplaceParameters fully replaces the stored flat parameter map.
	ReplaceParameters(ctx context.Context, handle *model.SessionHandle, flat model.Fields) error

	// ReadParameters returns the currently stored flat parameter map,
	// or nil if none has been written yet.
	ReadParameters(ctx context.Context, handle *model.SessionHandle) (model.Fields, error)

	// EnsureTrack creates or updates a track's metadata sidecar.
	EnsureTrack(ctx context.Context, handle *model.SessionHandle, trackName string, meta model.TrackMetadata) error

	// WriteTrackRecords persists already-merged points for one
	// track. A single point is written as a row record; two or more
	// are written as one columnar block, per spec.md §4.5.
	WriteTrackRecords(ctx context.Context, handle *model.SessionHandle, trackName string, points []model.DataPoint) error

	// ReadTrackRange returns points by logical index range.
	ReadTrackRange(ctx context.Context, handle *model.SessionHandle, trackName string, startIndex int64, limit int64) (*model.TrackPage, error)

	// ReadTrackTime returns points whose `_ts` falls in [startTs,
	// endTs), either bound possibly nil for "unbounded".
	ReadTrackTime(ctx context.Context, handle *model.SessionHandle, trackName string, startTs, endTs *float64, limit int, reverse bool) (*model.TimeRangePage, error)

	// ListTracks returns every track's metadata.
	ListTracks(ctx context.Context, handle *model.SessionHandle) ([]model.TrackMetadata, error)

	// UploadFile streams a local source file into content-addressed
	// storage and records its metadata.
	UploadFile(ctx context.Context, handle *model.SessionHandle, req UploadFileRequest) (*model.FileArtifact, error)

	// ListFiles returns file artifacts, optionally filtered by prefix
	// and/or tag membership. Soft-deleted files are excluded.
	ListFiles(ctx context.Context, handle *model.SessionHandle, prefix string, tags []string) ([]model.FileArtifact, error)

	// UpdateFile updates a file's metadata in place.
	UpdateFile(ctx context.Context, handle *model.SessionHandle, fileID string, update FileUpdate) (*model.FileArtifact, error)

	// DeleteFile soft-deletes a file: it disappears from ListFiles
	// but its bytes remain on disk/in the object store.
	DeleteFile(ctx context.Context, handle *model.SessionHandle, fileID string) error

	// DownloadFile copies a previously uploaded file to destPath,
	// returning the final path written.
	DownloadFile(ctx context.Context, handle *model.SessionHandle, fileID string, destPath string) (string, error)

	// Close releases any per-session resources the backend holds
	// (a lockfile, pooled HTTP connections). Called exactly once,
	// from Session.Close.
	Close(ctx context.Context, handle *model.SessionHandle) error
}
