package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
	"github.com/dreamlake-ai/dreamlake-go/internal/diskcheck"
	"github.com/dreamlake-ai/dreamlake-go/internal/model"
	"github.com/dreamlake-ai/dreamlake-go/internal/trackio"
	"github.com/dreamlake-ai/dreamlake-go/internal/util"
	"github.com/dreamlake-ai/dreamlake-go/internal/validation"
)

// LocalBackend persists a session tree under a root directory, per the
// layout in spec §4.2/§6. Grounded on the teacher's
// service.CommitLogService (append-only segment writes, fsync-optional)
// and on gofrs/flock for the session lockfile: the teacher coordinates
// concurrent writers with gossip/vector-clocks, which has no analogue
// here — this SDK instead refuses a second concurrent local session on
// the same (workspace, name) outright via a non-blocking advisory lock.
type LocalBackend struct {
	root string

	locks map[string]*flock.Flock
}

// NewLocalBackend returns a LocalBackend rooted at root, creating it if
// absent.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, dlerrors.Transientf(err, "create local backend root %q", root)
	}
	return &LocalBackend{root: root, locks: make(map[string]*flock.Flock)}, nil
}

func (b *LocalBackend) sessionDir(handle *model.SessionHandle) string {
	return filepath.Join(b.root, handle.Workspace, handle.Name)
}

func (b *LocalBackend) UpsertSession(ctx context.Context, req UpsertSessionRequest) (*model.SessionHandle, error) {
	if req.Workspace == "" || req.Name == "" {
		return nil, dlerrors.Invalid("workspace and name are required")
	}

	dir := filepath.Join(b.root, req.Workspace, req.Name)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return nil, dlerrors.Transientf(err, "create session directory %q", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, "tracks"), 0o755); err != nil {
		return nil, dlerrors.Transientf(err, "create tracks directory")
	}
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o755); err != nil {
		return nil, dlerrors.Transientf(err, "create files directory")
	}

	lockPath := filepath.Join(dir, ".session.lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, dlerrors.Transientf(err, "acquire session lock %q", lockPath)
	}
	if !locked {
		return nil, dlerrors.Conflictf("session (%s, %s) is already open in another process", req.Workspace, req.Name)
	}

	key := req.Workspace + "/" + req.Name
	b.locks[key] = fl

	metaPath := filepath.Join(dir, "session.json")
	now := time.Now().UTC()

	var meta model.SessionMetadata
	if existing, err := readJSON[model.SessionMetadata](metaPath); err == nil {
		meta = existing
	} else {
		meta.CreatedAt = now
	}

	meta.Namespace = req.Namespace
	meta.Workspace = req.Workspace
	meta.Name = req.Name
	if req.Description != "" {
		meta.Description = req.Description
	}
	if len(req.Tags) > 0 {
		meta.Tags = req.Tags
	}
	if req.Folder != "" {
		meta.Folder = req.Folder
	}
	meta.UpdatedAt = now

	if err := util.WriteJSON(metaPath, meta); err != nil {
		return nil, dlerrors.Transientf(err, "write session.json")
	}

	return &model.SessionHandle{
		ID:        dir,
		Namespace: req.Namespace,
		Workspace: req.Workspace,
		Name:      req.Name,
	}, nil
}

func (b *LocalBackend) logPath(handle *model.SessionHandle) string {
	return filepath.Join(b.sessionDir(handle), "logs", "logs.jsonl")
}

// logLine mirrors the on-disk schema from spec §6: ISO-8601 timestamp,
// enum-string level, message, nullable metadata object, integer
// sequence number.
type logLine struct {
	Timestamp      string       `json:"timestamp"`
	Level          model.LogLevel `json:"level"`
	Message        string       `json:"message"`
	Metadata       model.Fields `json:"metadata"`
	SequenceNumber uint64       `json:"sequenceNumber"`
}

func (b *LocalBackend) AppendLogs(ctx context.Context, handle *model.SessionHandle, records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := diskcheck.EnsureRoom(b.sessionDir(handle)); err != nil {
		return dlerrors.Transientf(err, "disk space preflight")
	}

	path := b.logPath(handle)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return dlerrors.Transientf(err, "open %q", path)
	}
	defer f.Close()

	var buf bytes.Buffer
	for _, r := range records {
		line := logLine{
			Timestamp:      r.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:          r.Level,
			Message:        r.Message,
			Metadata:       r.Metadata,
			SequenceNumber: r.SequenceNumber,
		}
		enc, err := json.Marshal(line)
		if err != nil {
			return dlerrors.New(dlerrors.BadInput, "encode log record", err)
		}
		buf.Write(enc)
		buf.WriteByte('\n')
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return dlerrors.Transientf(err, "append logs")
	}
	return nil
}

func (b *LocalBackend) paramsPath(handle *model.SessionHandle) string {
	return filepath.Join(b.sessionDir(handle), "parameters.json")
}

func (b *LocalBackend) ReplaceParameters(ctx context.Context, handle *model.SessionHandle, flat model.Fields) error {
	if err := util.WriteJSON(b.paramsPath(handle), flat); err != nil {
		return dlerrors.Transientf(err, "write parameters.json")
	}
	return nil
}

func (b *LocalBackend) ReadParameters(ctx context.Context, handle *model.SessionHandle) (model.Fields, error) {
	path := b.paramsPath(handle)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dlerrors.Transientf(err, "read parameters.json")
	}
	var out model.Fields
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, dlerrors.Corruptf(err, "parameters.json is not valid JSON")
	}
	return out, nil
}

func (b *LocalBackend) trackDir(handle *model.SessionHandle, trackName string) string {
	return filepath.Join(b.sessionDir(handle), "tracks", validation.SafeDirName(trackName))
}

func (b *LocalBackend) EnsureTrack(ctx context.Context, handle *model.SessionHandle, trackName string, meta model.TrackMetadata) error {
	if err := validation.TrackName(trackName); err != nil {
		return err
	}
	dir := b.trackDir(handle, trackName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dlerrors.Transientf(err, "create track directory %q", dir)
	}

	metaPath := filepath.Join(dir, "metadata.json")
	existing, err := readJSON[model.TrackMetadata](metaPath)
	if err == nil {
		meta.TotalDataPoints = existing.TotalDataPoints
		meta.FirstTimestamp = existing.FirstTimestamp
		meta.LastTimestamp = existing.LastTimestamp
		meta.CreatedAt = existing.CreatedAt
	} else {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.UpdatedAt = time.Now().UTC()

	if err := util.WriteJSON(metaPath, meta); err != nil {
		return dlerrors.Transientf(err, "write track metadata.json")
	}
	return nil
}

func (b *LocalBackend) WriteTrackRecords(ctx context.Context, handle *model.SessionHandle, trackName string, points []model.DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := diskcheck.EnsureRoom(b.sessionDir(handle)); err != nil {
		return dlerrors.Transientf(err, "disk space preflight")
	}

	dir := b.trackDir(handle, trackName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dlerrors.Transientf(err, "create track directory %q", dir)
	}

	var payload []byte
	var err error
	if len(points) == 1 {
		payload, err = trackio.EncodeRow(points[0])
	} else {
		payload, err = trackio.EncodeColumnar(points)
	}
	if err != nil {
		return dlerrors.New(dlerrors.BadInput, "encode track record", err)
	}

	dataPath := filepath.Join(dir, "data.msgpack")
	f, err := os.OpenFile(dataPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return dlerrors.Transientf(err, "open %q", dataPath)
	}
	defer f.Close()

	if err := trackio.WriteFrame(f, payload); err != nil {
		return dlerrors.Transientf(err, "write track frame")
	}

	metaPath := filepath.Join(dir, "metadata.json")
	meta, err := readJSON[model.TrackMetadata](metaPath)
	if err != nil {
		meta = model.TrackMetadata{Name: trackName, CreatedAt: time.Now().UTC()}
	}
	meta.TotalDataPoints += int64(len(points))
	for _, p := range points {
		ts := p.Timestamp()
		if meta.FirstTimestamp == nil {
			meta.FirstTimestamp = &ts
		}
		meta.LastTimestamp = &ts
	}
	meta.UpdatedAt = time.Now().UTC()
	if err := util.WriteJSON(metaPath, meta); err != nil {
		return dlerrors.Transientf(err, "update track metadata.json")
	}

	return nil
}

func (b *LocalBackend) readAllPoints(dir, trackName string) ([]model.DataPoint, error) {
	dataPath := filepath.Join(dir, "data.msgpack")
	f, err := os.Open(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dlerrors.Transientf(err, "open %q", dataPath)
	}
	defer f.Close()

	var points []model.DataPoint
	err = trackio.ReadAllFrames(f, func(payload []byte) error {
		decoded, err := trackio.DecodeRecord(payload)
		if err != nil {
			return err
		}
		points = append(points, decoded...)
		return nil
	})
	if err != nil {
		if _, ok := err.(*trackio.ErrCorrupt); ok {
			return nil, dlerrors.Corruptf(err, "track %q data stream is corrupt", trackName)
		}
		return nil, dlerrors.Transientf(err, "read track %q", trackName)
	}
	return points, nil
}

func (b *LocalBackend) ReadTrackRange(ctx context.Context, handle *model.SessionHandle, trackName string, startIndex int64, limit int64) (*model.TrackPage, error) {
	points, err := b.readAllPoints(b.trackDir(handle, trackName), trackName)
	if err != nil {
		return nil, err
	}

	page := &model.TrackPage{Total: int64(len(points))}
	if startIndex >= int64(len(points)) {
		return page, nil
	}

	end := startIndex + limit
	if limit <= 0 || end > int64(len(points)) {
		end = int64(len(points))
	}
	for i := startIndex; i < end; i++ {
		page.Items = append(page.Items, model.IndexedPoint{Index: i, Data: points[i]})
	}
	return page, nil
}

func (b *LocalBackend) ReadTrackTime(ctx context.Context, handle *model.SessionHandle, trackName string, startTs, endTs *float64, limit int, reverse bool) (*model.TimeRangePage, error) {
	points, err := b.readAllPoints(b.trackDir(handle, trackName), trackName)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 1000
	}
	if limit > 10000 {
		limit = 10000
	}

	var matched []model.IndexedPoint
	for i, p := range points {
		ts := p.Timestamp()
		if startTs != nil && ts < *startTs {
			continue
		}
		if endTs != nil && ts >= *endTs {
			continue
		}
		matched = append(matched, model.IndexedPoint{Index: int64(i), Data: p})
	}

	if reverse {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Index > matched[j].Index })
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return &model.TimeRangePage{Items: matched}, nil
}

func (b *LocalBackend) ListTracks(ctx context.Context, handle *model.SessionHandle) ([]model.TrackMetadata, error) {
	tracksRoot := filepath.Join(b.sessionDir(handle), "tracks")
	entries, err := os.ReadDir(tracksRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dlerrors.Transientf(err, "list tracks directory")
	}

	var out []model.TrackMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		metaPath := filepath.Join(tracksRoot, e.Name(), "metadata.json")
		meta, err := readJSON[model.TrackMetadata](metaPath)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (b *LocalBackend) filesMetaPath(handle *model.SessionHandle) string {
	return filepath.Join(b.sessionDir(handle), "files", ".files_metadata.json")
}

func (b *LocalBackend) readFilesMeta(handle *model.SessionHandle) ([]model.FileArtifact, error) {
	path := b.filesMetaPath(handle)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dlerrors.Transientf(err, "read files metadata")
	}
	var out []model.FileArtifact
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, dlerrors.Corruptf(err, ".files_metadata.json is not valid JSON")
	}
	return out, nil
}

func (b *LocalBackend) writeFilesMeta(handle *model.SessionHandle, artifacts []model.FileArtifact) error {
	if err := util.WriteJSON(b.filesMetaPath(handle), artifacts); err != nil {
		return dlerrors.Transientf(err, "write files metadata")
	}
	return nil
}

func (b *LocalBackend) UploadFile(ctx context.Context, handle *model.SessionHandle, req UploadFileRequest) (*model.FileArtifact, error) {
	if err := validation.FilePrefix(req.Prefix); err != nil {
		return nil, err
	}

	info, err := os.Stat(req.SourcePath)
	if err != nil {
		return nil, dlerrors.Invalid("cannot stat source file %q: %v", req.SourcePath, err)
	}
	if err := validation.FileSize(info.Size()); err != nil {
		return nil, err
	}
	if err := diskcheck.EnsureRoom(b.sessionDir(handle)); err != nil {
		return nil, dlerrors.Transientf(err, "disk space preflight")
	}

	src, err := os.Open(req.SourcePath)
	if err != nil {
		return nil, dlerrors.Invalid("cannot open source file %q: %v", req.SourcePath, err)
	}
	defer src.Close()

	fileID := uuid.NewString()
	filename := filepath.Base(req.SourcePath)
	destDir := filepath.Join(b.sessionDir(handle), "files", filepath.FromSlash(req.Prefix), fileID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, dlerrors.Transientf(err, "create file destination directory")
	}
	destPath := filepath.Join(destDir, filename)

	dst, err := os.Create(destPath)
	if err != nil {
		return nil, dlerrors.Transientf(err, "create destination file %q", destPath)
	}
	defer dst.Close()

	hasher := sha256.New()
	if _, err := io.Copy(dst, io.TeeReader(src, hasher)); err != nil {
		return nil, dlerrors.Transientf(err, "copy file contents")
	}

	artifact := model.FileArtifact{
		FileID:      fileID,
		Filename:    filename,
		Prefix:      req.Prefix,
		SizeBytes:   info.Size(),
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Description: req.Description,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now().UTC(),
	}

	artifacts, err := b.readFilesMeta(handle)
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, artifact)
	if err := b.writeFilesMeta(handle, artifacts); err != nil {
		return nil, err
	}

	return &artifact, nil
}

func (b *LocalBackend) ListFiles(ctx context.Context, handle *model.SessionHandle, prefix string, tags []string) ([]model.FileArtifact, error) {
	artifacts, err := b.readFilesMeta(handle)
	if err != nil {
		return nil, err
	}

	var out []model.FileArtifact
	for _, a := range artifacts {
		if a.DeletedAt != nil {
			continue
		}
		if prefix != "" && a.Prefix != prefix {
			continue
		}
		if len(tags) > 0 && !hasAllTags(a.Tags, tags) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func (b *LocalBackend) UpdateFile(ctx context.Context, handle *model.SessionHandle, fileID string, update FileUpdate) (*model.FileArtifact, error) {
	artifacts, err := b.readFilesMeta(handle)
	if err != nil {
		return nil, err
	}

	for i := range artifacts {
		if artifacts[i].FileID != fileID {
			continue
		}
		if update.Description != nil {
			artifacts[i].Description = *update.Description
		}
		if update.Tags != nil {
			artifacts[i].Tags = update.Tags
		}
		if update.Metadata != nil {
			artifacts[i].Metadata = update.Metadata
		}
		if err := b.writeFilesMeta(handle, artifacts); err != nil {
			return nil, err
		}
		return &artifacts[i], nil
	}
	return nil, dlerrors.NotFoundf("file %q not found", fileID)
}

func (b *LocalBackend) DeleteFile(ctx context.Context, handle *model.SessionHandle, fileID string) error {
	artifacts, err := b.readFilesMeta(handle)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range artifacts {
		if artifacts[i].FileID == fileID {
			artifacts[i].DeletedAt = &now
			return b.writeFilesMeta(handle, artifacts)
		}
	}
	return dlerrors.NotFoundf("file %q not found", fileID)
}

func (b *LocalBackend) DownloadFile(ctx context.Context, handle *model.SessionHandle, fileID string, destPath string) (string, error) {
	artifacts, err := b.readFilesMeta(handle)
	if err != nil {
		return "", err
	}

	var found *model.FileArtifact
	for i := range artifacts {
		if artifacts[i].FileID == fileID {
			found = &artifacts[i]
			break
		}
	}
	if found == nil {
		return "", dlerrors.NotFoundf("file %q not found", fileID)
	}

	srcPath := filepath.Join(b.sessionDir(handle), "files", filepath.FromSlash(found.Prefix), found.FileID, found.Filename)
	src, err := os.Open(srcPath)
	if err != nil {
		return "", dlerrors.Transientf(err, "open stored file %q", srcPath)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", dlerrors.Transientf(err, "create destination directory")
	}
	dst, err := os.Create(destPath)
	if err != nil {
		return "", dlerrors.Transientf(err, "create destination file %q", destPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", dlerrors.Transientf(err, "copy downloaded file")
	}
	return destPath, nil
}

func (b *LocalBackend) Close(ctx context.Context, handle *model.SessionHandle) error {
	key := handle.Workspace + "/" + handle.Name
	fl, ok := b.locks[key]
	if !ok {
		return nil
	}
	delete(b.locks, key)
	if err := fl.Unlock(); err != nil {
		return dlerrors.Transientf(err, "release session lock")
	}
	return nil
}

// readJSON is a small generic helper shared by the session.json and
// metadata.json readers in this file: read a JSON document, return a
// plain wrapped error (not a dlerrors.Corrupt) on malformed content,
// and propagate the not-exist error unchanged so callers can tell
// "absent" from "broken" apart.
func readJSON[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("corrupt JSON at %q: %w", path, err)
	}
	return out, nil
}
