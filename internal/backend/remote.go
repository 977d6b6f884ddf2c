package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
	"github.com/dreamlake-ai/dreamlake-go/internal/model"
	"github.com/dreamlake-ai/dreamlake-go/internal/validation"
)

// devTokenSecret is the shared secret used to derive a development
// bearer token from a username. It is intentionally baked into the
// binary: this mode exists only for local experimentation against a
// trusted server, documented as such in spec §4.3/§6, and must never
// be relied on for real authentication.
const devTokenSecret = "dreamlake-dev-insecure-shared-secret"

// RemoteBackend maps Backend operations onto an HTTP/JSON API, one
// request per operation, per spec §4.3/§6. Grounded on the teacher's
// service layer for the request/response shape and on
// golang-jwt/jwt/v4 for the deterministic dev-token path the original
// Python client's _generate_api_key_from_username implements; stdlib
// net/http and mime/multipart are used directly because no HTTP client
// or multipart-building library appears anywhere in the retrieval pack.
type RemoteBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteBackend constructs a RemoteBackend. Exactly one of apiKey or
// userName should be non-empty; if both are empty the backend will
// send unauthenticated requests, which a real server will reject.
func NewRemoteBackend(baseURL, apiKey, userName string) (*RemoteBackend, error) {
	token := apiKey
	if token == "" && userName != "" {
		derived, err := deriveDevToken(userName)
		if err != nil {
			return nil, err
		}
		token = derived
	}

	return &RemoteBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// deriveDevToken signs a short-lived HS256 JWT from userName alone,
// matching _generate_api_key_from_username in the original
// implementation bit for bit: take the first 16 hex characters of
// sha256(userName), parse them as a base-16 integer, and keep the
// first 10 digits of its decimal representation as the userId.
func deriveDevToken(userName string) (string, error) {
	sum := sha256.Sum256([]byte(userName))
	hexDigest := hex.EncodeToString(sum[:])

	n := new(big.Int)
	n.SetString(hexDigest[:16], 16)
	decimal := n.String()
	if len(decimal) > 10 {
		decimal = decimal[:10]
	}
	userID := decimal

	now := time.Now()
	claims := jwt.MapClaims{
		"userId":   userID,
		"userName": userName,
		"iat":      now.Unix(),
		"exp":      now.Add(30 * 24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(devTokenSecret))
	if err != nil {
		return "", dlerrors.New(dlerrors.BadInput, "derive development token", err)
	}
	return signed, nil
}

func (b *RemoteBackend) do(ctx context.Context, method, pathSuffix string, query url.Values, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, dlerrors.New(dlerrors.BadInput, "encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	u := b.baseURL + pathSuffix
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, dlerrors.New(dlerrors.BadInput, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, dlerrors.Transientf(err, "%s %s", method, pathSuffix)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dlerrors.Transientf(err, "read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, dlerrors.NotFoundf("%s %s: not found", method, pathSuffix)
	}
	if resp.StatusCode == http.StatusConflict {
		return nil, dlerrors.Conflictf("%s %s: conflict", method, pathSuffix)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, dlerrors.Invalid("%s %s: server rejected request (%d): %s", method, pathSuffix, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 500 {
		return nil, dlerrors.Transientf(fmt.Errorf("status %d", resp.StatusCode), "%s %s: server error: %s", method, pathSuffix, string(respBody))
	}
	return respBody, nil
}

func (b *RemoteBackend) UpsertSession(ctx context.Context, req UpsertSessionRequest) (*model.SessionHandle, error) {
	body := map[string]interface{}{
		"name":        req.Name,
		"namespace":   req.Namespace,
		"description": req.Description,
		"tags":        req.Tags,
		"folder":      req.Folder,
	}
	respBody, err := b.do(ctx, http.MethodPost, "/workspaces/"+url.PathEscape(req.Workspace)+"/sessions", nil, body)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, dlerrors.Corruptf(err, "decode session upsert response")
	}

	return &model.SessionHandle{
		ID:        decoded.ID,
		Namespace: req.Namespace,
		Workspace: req.Workspace,
		Name:      req.Name,
	}, nil
}

func (b *RemoteBackend) AppendLogs(ctx context.Context, handle *model.SessionHandle, records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := b.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(handle.ID)+"/logs", nil, map[string]interface{}{"records": records})
	return err
}

func (b *RemoteBackend) ReplaceParameters(ctx context.Context, handle *model.SessionHandle, flat model.Fields) error {
	_, err := b.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(handle.ID)+"/parameters", nil, flat)
	return err
}

func (b *RemoteBackend) ReadParameters(ctx context.Context, handle *model.SessionHandle) (model.Fields, error) {
	respBody, err := b.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(handle.ID)+"/parameters", nil, nil)
	if err != nil {
		if dlerrors.Is(err, dlerrors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	var out model.Fields
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, dlerrors.Corruptf(err, "decode parameters response")
	}
	return out, nil
}

func (b *RemoteBackend) EnsureTrack(ctx context.Context, handle *model.SessionHandle, trackName string, meta model.TrackMetadata) error {
	_, err := b.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(handle.ID)+"/tracks/"+url.PathEscape(trackName), nil, meta)
	return err
}

func (b *RemoteBackend) WriteTrackRecords(ctx context.Context, handle *model.SessionHandle, trackName string, points []model.DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	base := "/sessions/" + url.PathEscape(handle.ID) + "/tracks/" + url.PathEscape(trackName)
	if len(points) == 1 {
		_, err := b.do(ctx, http.MethodPost, base, nil, points[0])
		return err
	}
	_, err := b.do(ctx, http.MethodPost, base+"/batch", nil, map[string]interface{}{"points": points})
	return err
}

func (b *RemoteBackend) ReadTrackRange(ctx context.Context, handle *model.SessionHandle, trackName string, startIndex int64, limit int64) (*model.TrackPage, error) {
	q := url.Values{"start": {strconv.FormatInt(startIndex, 10)}, "limit": {strconv.FormatInt(limit, 10)}}
	respBody, err := b.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(handle.ID)+"/tracks/"+url.PathEscape(trackName), q, nil)
	if err != nil {
		return nil, err
	}
	var page model.TrackPage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, dlerrors.Corruptf(err, "decode track range response")
	}
	return &page, nil
}

func (b *RemoteBackend) ReadTrackTime(ctx context.Context, handle *model.SessionHandle, trackName string, startTs, endTs *float64, limit int, reverse bool) (*model.TimeRangePage, error) {
	q := url.Values{}
	if startTs != nil {
		q.Set("startTs", strconv.FormatFloat(*startTs, 'f', -1, 64))
	}
	if endTs != nil {
		q.Set("endTs", strconv.FormatFloat(*endTs, 'f', -1, 64))
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("reverse", strconv.FormatBool(reverse))

	respBody, err := b.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(handle.ID)+"/tracks/"+url.PathEscape(trackName), q, nil)
	if err != nil {
		return nil, err
	}
	var page model.TimeRangePage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, dlerrors.Corruptf(err, "decode track time-range response")
	}
	return &page, nil
}

func (b *RemoteBackend) ListTracks(ctx context.Context, handle *model.SessionHandle) ([]model.TrackMetadata, error) {
	respBody, err := b.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(handle.ID)+"/tracks", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []model.TrackMetadata
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, dlerrors.Corruptf(err, "decode track list response")
	}
	return out, nil
}

func (b *RemoteBackend) UploadFile(ctx context.Context, handle *model.SessionHandle, req UploadFileRequest) (*model.FileArtifact, error) {
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

	src, err := os.Open(req.SourcePath)
	if err != nil {
		return nil, dlerrors.Invalid("cannot open source file %q: %v", req.SourcePath, err)
	}
	defer src.Close()

	var bodyBuf bytes.Buffer
	writer := multipart.NewWriter(&bodyBuf)

	metaPart, err := writer.CreateFormField("metadata")
	if err != nil {
		return nil, dlerrors.New(dlerrors.BadInput, "build multipart request", err)
	}
	metaJSON, err := json.Marshal(map[string]interface{}{
		"prefix":      req.Prefix,
		"description": req.Description,
		"tags":        req.Tags,
		"metadata":    req.Metadata,
	})
	if err != nil {
		return nil, dlerrors.New(dlerrors.BadInput, "encode upload metadata", err)
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return nil, dlerrors.New(dlerrors.BadInput, "write upload metadata part", err)
	}

	filePart, err := writer.CreateFormFile("file", filepath.Base(req.SourcePath))
	if err != nil {
		return nil, dlerrors.New(dlerrors.BadInput, "build multipart file part", err)
	}
	if _, err := io.Copy(filePart, src); err != nil {
		return nil, dlerrors.Transientf(err, "stream file into request")
	}
	if err := writer.Close(); err != nil {
		return nil, dlerrors.New(dlerrors.BadInput, "close multipart writer", err)
	}

	reqURL := b.baseURL + "/sessions/" + url.PathEscape(handle.ID) + "/files"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &bodyBuf)
	if err != nil {
		return nil, dlerrors.New(dlerrors.BadInput, "build upload request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if b.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, dlerrors.Transientf(err, "upload file")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dlerrors.Transientf(err, "read upload response")
	}
	if resp.StatusCode >= 400 {
		return nil, dlerrors.Transientf(fmt.Errorf("status %d", resp.StatusCode), "upload file: server rejected request: %s", string(respBody))
	}

	var artifact model.FileArtifact
	if err := json.Unmarshal(respBody, &artifact); err != nil {
		return nil, dlerrors.Corruptf(err, "decode file upload response")
	}
	return &artifact, nil
}

func (b *RemoteBackend) ListFiles(ctx context.Context, handle *model.SessionHandle, prefix string, tags []string) ([]model.FileArtifact, error) {
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if len(tags) > 0 {
		q.Set("tags", strings.Join(tags, ","))
	}
	respBody, err := b.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(handle.ID)+"/files", q, nil)
	if err != nil {
		return nil, err
	}
	var out []model.FileArtifact
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, dlerrors.Corruptf(err, "decode file list response")
	}
	return out, nil
}

func (b *RemoteBackend) UpdateFile(ctx context.Context, handle *model.SessionHandle, fileID string, update FileUpdate) (*model.FileArtifact, error) {
	body := map[string]interface{}{}
	if update.Description != nil {
		body["description"] = *update.Description
	}
	if update.Tags != nil {
		body["tags"] = update.Tags
	}
	if update.Metadata != nil {
		body["metadata"] = update.Metadata
	}

	respBody, err := b.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(handle.ID)+"/files/"+url.PathEscape(fileID), nil, body)
	if err != nil {
		return nil, err
	}
	var artifact model.FileArtifact
	if err := json.Unmarshal(respBody, &artifact); err != nil {
		return nil, dlerrors.Corruptf(err, "decode file update response")
	}
	return &artifact, nil
}

func (b *RemoteBackend) DeleteFile(ctx context.Context, handle *model.SessionHandle, fileID string) error {
	_, err := b.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(handle.ID)+"/files/"+url.PathEscape(fileID), nil, nil)
	return err
}

func (b *RemoteBackend) DownloadFile(ctx context.Context, handle *model.SessionHandle, fileID string, destPath string) (string, error) {
	reqURL := b.baseURL + path.Join("/sessions", handle.ID, "files", fileID, "content")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", dlerrors.New(dlerrors.BadInput, "build download request", err)
	}
	if b.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", dlerrors.Transientf(err, "download file %q", fileID)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", dlerrors.NotFoundf("file %q not found", fileID)
	}
	if resp.StatusCode >= 400 {
		return "", dlerrors.Transientf(fmt.Errorf("status %d", resp.StatusCode), "download file %q", fileID)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", dlerrors.Transientf(err, "create destination directory")
	}
	dst, err := os.Create(destPath)
	if err != nil {
		return "", dlerrors.Transientf(err, "create destination file %q", destPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return "", dlerrors.Transientf(err, "write downloaded file")
	}
	return destPath, nil
}

func (b *RemoteBackend) Close(ctx context.Context, handle *model.SessionHandle) error {
	b.client.CloseIdleConnections()
	return nil
}
