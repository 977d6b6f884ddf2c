package dreamlake

import (
	"context"
	"time"

	"github.com/dreamlake-ai/dreamlake-go/internal/backend"
	"github.com/dreamlake-ai/dreamlake-go/internal/model"
)

// FilesHandle is the fluent entry point for a session's file
// artifacts, per spec §4.7.
type FilesHandle struct {
	session *Session
}

// Files returns the handle for this session's file artifacts.
func (s *Session) Files() *FilesHandle {
	return &FilesHandle{session: s}
}

// UploadOption customizes a file upload's metadata.
type UploadOption func(*backend.UploadFileRequest)

func WithFileDescription(description string) UploadOption {
	return func(r *backend.UploadFileRequest) { r.Description = description }
}

func WithFileTags(tags ...string) UploadOption {
	return func(r *backend.UploadFileRequest) { r.Tags = tags }
}

func WithFileMetadata(metadata model.Fields) UploadOption {
	return func(r *backend.UploadFileRequest) { r.Metadata = metadata }
}

// Upload streams sourcePath into content-addressed storage under
// prefix (which must start with "/"), computing its SHA-256 checksum
// as it goes. It fails BadInput if the source exceeds 5 GiB.
func (f *FilesHandle) Upload(sourcePath, prefix string, opts ...UploadOption) (*model.FileArtifact, error) {
	s := f.session
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	req := backend.UploadFileRequest{SourcePath: sourcePath, Prefix: prefix}
	for _, opt := range opts {
		opt(&req)
	}

	timer := time.Now()
	artifact, err := s.backend.UploadFile(context.Background(), s.handle, req)
	if err != nil {
		return nil, err
	}

	s.metrics.FileUploadsTotal.Inc()
	s.metrics.FileUploadBytes.Observe(float64(artifact.SizeBytes))
	s.metrics.FileUploadDuration.Observe(time.Since(timer).Seconds())
	return artifact, nil
}

// List returns file artifacts, optionally filtered by prefix and/or
// tag membership. Soft-deleted files are excluded.
func (f *FilesHandle) List(prefix string, tags ...string) ([]model.FileArtifact, error) {
	if err := f.session.checkOpen(); err != nil {
		return nil, err
	}
	return f.session.backend.ListFiles(context.Background(), f.session.handle, prefix, tags)
}

// Update changes a file's description, tags, and/or metadata in
// place. Only non-zero values are applied: an empty description and
// nil tags or metadata leave the stored value unchanged, even when
// passed through the corresponding option.
func (f *FilesHandle) Update(fileID string, opts ...UploadOption) (*model.FileArtifact, error) {
	if err := f.session.checkOpen(); err != nil {
		return nil, err
	}

	var req backend.UploadFileRequest
	for _, opt := range opts {
		opt(&req)
	}

	update := backend.FileUpdate{Tags: req.Tags, Metadata: req.Metadata}
	if req.Description != "" {
		update.Description = &req.Description
	}
	return f.session.backend.UpdateFile(context.Background(), f.session.handle, fileID, update)
}

// Delete soft-deletes a file: it disappears from List but its bytes
// remain in storage.
func (f *FilesHandle) Delete(fileID string) error {
	if err := f.session.checkOpen(); err != nil {
		return err
	}
	return f.session.backend.DeleteFile(context.Background(), f.session.handle, fileID)
}

// Download copies a previously uploaded file to destPath, returning
// the final path written.
func (f *FilesHandle) Download(fileID, destPath string) (string, error) {
	if err := f.session.checkOpen(); err != nil {
		return "", err
	}
	return f.session.backend.DownloadFile(context.Background(), f.session.handle, fileID, destPath)
}
