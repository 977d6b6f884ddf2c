package backend_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamlake-ai/dreamlake-go/internal/backend"
	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
	"github.com/dreamlake-ai/dreamlake-go/internal/model"
)

func newLocalBackend(t *testing.T) (*backend.LocalBackend, *model.SessionHandle) {
	t.Helper()
	b, err := backend.NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	handle, err := b.UpsertSession(context.Background(), backend.UpsertSessionRequest{
		Workspace: "ws", Name: "run-1",
	})
	require.NoError(t, err)
	return b, handle
}

func TestUpsertSession_CreatesSessionTree(t *testing.T) {
	root := t.TempDir()
	b, err := backend.NewLocalBackend(root)
	require.NoError(t, err)

	handle, err := b.UpsertSession(context.Background(), backend.UpsertSessionRequest{
		Workspace: "ws", Name: "run-1", Description: "first run", Tags: []string{"baseline"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ws", handle.Workspace)
	assert.Equal(t, "run-1", handle.Name)

	sessionJSON := filepath.Join(root, "ws", "run-1", "session.json")
	assert.FileExists(t, sessionJSON)
}

func TestUpsertSession_SecondOpenOnSameSessionConflicts(t *testing.T) {
	root := t.TempDir()
	b1, err := backend.NewLocalBackend(root)
	require.NoError(t, err)
	_, err = b1.UpsertSession(context.Background(), backend.UpsertSessionRequest{Workspace: "ws", Name: "run-1"})
	require.NoError(t, err)

	b2, err := backend.NewLocalBackend(root)
	require.NoError(t, err)
	_, err = b2.UpsertSession(context.Background(), backend.UpsertSessionRequest{Workspace: "ws", Name: "run-1"})
	require.Error(t, err)
	assert.True(t, dlerrors.Is(err, dlerrors.Conflict))
}

func TestUpsertSession_ReopenAfterCloseSucceeds(t *testing.T) {
	root := t.TempDir()
	b, err := backend.NewLocalBackend(root)
	require.NoError(t, err)

	handle, err := b.UpsertSession(context.Background(), backend.UpsertSessionRequest{Workspace: "ws", Name: "run-1"})
	require.NoError(t, err)
	require.NoError(t, b.Close(context.Background(), handle))

	_, err = b.UpsertSession(context.Background(), backend.UpsertSessionRequest{Workspace: "ws", Name: "run-1"})
	assert.NoError(t, err)
}

func TestAppendLogs_WritesJSONLines(t *testing.T) {
	b, handle := newLocalBackend(t)

	records := []model.LogRecord{
		{Timestamp: time.Now(), Level: model.LogLevelInfo, Message: "hello", SequenceNumber: 0},
		{Timestamp: time.Now(), Level: model.LogLevelWarn, Message: "careful", SequenceNumber: 1},
	}
	require.NoError(t, b.AppendLogs(context.Background(), handle, records))

	path := filepath.Join(handle.ID, "logs", "logs.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "careful")
}

func TestReplaceParameters_ReadParameters_RoundTrip(t *testing.T) {
	b, handle := newLocalBackend(t)

	flat := model.Fields{"lr": 0.01, "model.layers": 4.0}
	require.NoError(t, b.ReplaceParameters(context.Background(), handle, flat))

	got, err := b.ReadParameters(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, 0.01, got["lr"])
	assert.Equal(t, 4.0, got["model.layers"])
}

func TestReadParameters_NoneWrittenReturnsNil(t *testing.T) {
	b, handle := newLocalBackend(t)
	got, err := b.ReadParameters(context.Background(), handle)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnsureTrack_RejectsMalformedTrackName(t *testing.T) {
	b, handle := newLocalBackend(t)
	err := b.EnsureTrack(context.Background(), handle, "/leading/slash", model.TrackMetadata{Name: "/leading/slash"})
	require.Error(t, err)
	assert.True(t, dlerrors.Is(err, dlerrors.BadInput))
}

func TestWriteTrackRecords_SinglePointIsRowRecord(t *testing.T) {
	b, handle := newLocalBackend(t)
	require.NoError(t, b.EnsureTrack(context.Background(), handle, "loss", model.TrackMetadata{Name: "loss"}))
	require.NoError(t, b.WriteTrackRecords(context.Background(), handle, "loss", []model.DataPoint{
		{model.TSKey: 1.0, "value": 0.5},
	}))

	page, err := b.ReadTrackRange(context.Background(), handle, "loss", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1.0, page.Items[0].Data.Timestamp())
	assert.Equal(t, 0.5, page.Items[0].Data["value"])
}

func TestWriteTrackRecords_BatchIsColumnarRecord(t *testing.T) {
	b, handle := newLocalBackend(t)
	require.NoError(t, b.EnsureTrack(context.Background(), handle, "loss", model.TrackMetadata{Name: "loss"}))
	require.NoError(t, b.WriteTrackRecords(context.Background(), handle, "loss", []model.DataPoint{
		{model.TSKey: 1.0, "value": 0.5},
		{model.TSKey: 2.0, "value": 0.4},
	}))

	page, err := b.ReadTrackRange(context.Background(), handle, "loss", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 1.0, page.Items[0].Data.Timestamp())
	assert.Equal(t, 2.0, page.Items[1].Data.Timestamp())
}

func TestReadTrackRange_RespectsStartAndLimit(t *testing.T) {
	b, handle := newLocalBackend(t)
	require.NoError(t, b.EnsureTrack(context.Background(), handle, "loss", model.TrackMetadata{Name: "loss"}))
	for i := 0; i < 5; i++ {
		require.NoError(t, b.WriteTrackRecords(context.Background(), handle, "loss", []model.DataPoint{
			{model.TSKey: float64(i), "value": i},
		}))
	}

	page, err := b.ReadTrackRange(context.Background(), handle, "loss", 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.EqualValues(t, 2, page.Items[0].Index)
	assert.EqualValues(t, 3, page.Items[1].Index)
}

func TestReadTrackTime_FiltersByRangeAndReverses(t *testing.T) {
	b, handle := newLocalBackend(t)
	require.NoError(t, b.EnsureTrack(context.Background(), handle, "loss", model.TrackMetadata{Name: "loss"}))
	require.NoError(t, b.WriteTrackRecords(context.Background(), handle, "loss", []model.DataPoint{
		{model.TSKey: 1.0, "v": 1}, {model.TSKey: 2.0, "v": 2}, {model.TSKey: 3.0, "v": 3},
	}))

	start := 1.5
	page, err := b.ReadTrackTime(context.Background(), handle, "loss", &start, nil, 10, true)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 3.0, page.Items[0].Data.Timestamp())
	assert.Equal(t, 2.0, page.Items[1].Data.Timestamp())
}

func TestListTracks_ReturnsMetadataForEveryTrack(t *testing.T) {
	b, handle := newLocalBackend(t)
	require.NoError(t, b.EnsureTrack(context.Background(), handle, "loss", model.TrackMetadata{Name: "loss"}))
	require.NoError(t, b.EnsureTrack(context.Background(), handle, "accuracy", model.TrackMetadata{Name: "accuracy"}))

	tracks, err := b.ListTracks(context.Background(), handle)
	require.NoError(t, err)
	names := []string{}
	for _, tr := range tracks {
		names = append(names, tr.Name)
	}
	assert.ElementsMatch(t, []string{"loss", "accuracy"}, names)
}

func TestUploadFile_ListFiles_UpdateFile_DeleteFile_DownloadFile(t *testing.T) {
	b, handle := newLocalBackend(t)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "weights.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte("binary-weights"), 0o644))

	artifact, err := b.UploadFile(context.Background(), handle, backend.UploadFileRequest{
		SourcePath: srcPath, Prefix: "/checkpoints", Tags: []string{"v1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "weights.bin", artifact.Filename)
	assert.NotEmpty(t, artifact.Checksum)

	files, err := b.ListFiles(context.Background(), handle, "/checkpoints", nil)
	require.NoError(t, err)
	require.Len(t, files, 1)

	desc := "final checkpoint"
	updated, err := b.UpdateFile(context.Background(), handle, artifact.FileID, backend.FileUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	destPath := filepath.Join(t.TempDir(), "downloaded.bin")
	gotPath, err := b.DownloadFile(context.Background(), handle, artifact.FileID, destPath)
	require.NoError(t, err)
	data, err := os.ReadFile(gotPath)
	require.NoError(t, err)
	assert.Equal(t, "binary-weights", string(data))

	require.NoError(t, b.DeleteFile(context.Background(), handle, artifact.FileID))
	files, err = b.ListFiles(context.Background(), handle, "/checkpoints", nil)
	require.NoError(t, err)
	assert.Empty(t, files, "soft-deleted file must not appear in List")
}

func TestUploadFile_RejectsBadPrefix(t *testing.T) {
	b, handle := newLocalBackend(t)
	srcPath := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(srcPath, []byte("x"), 0o644))

	_, err := b.UploadFile(context.Background(), handle, backend.UploadFileRequest{SourcePath: srcPath, Prefix: "no-leading-slash"})
	require.Error(t, err)
	assert.True(t, dlerrors.Is(err, dlerrors.BadInput))
}

func TestDeleteFile_UnknownFileIsNotFound(t *testing.T) {
	b, handle := newLocalBackend(t)
	err := b.DeleteFile(context.Background(), handle, "does-not-exist")
	assert.True(t, dlerrors.Is(err, dlerrors.NotFound))
}
