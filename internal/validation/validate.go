// Package validation holds the input checks the specification commits
// to (malformed prefixes, oversized files, bad track names). Adapted
// from the teacher's internal/validation/validator.go: the same
// control-character/null-byte scrubbing and size-limit shape, retargeted
// from tenant IDs/keys to track names and file prefixes.
package validation

import (
	"math"
	"strings"
	"unicode"

	"github.com/dreamlake-ai/dreamlake-go/internal/dlerrors"
)

// MaxFileUploadBytes is the hard ceiling from the specification: a
// source file larger than 5 GiB is rejected before any bytes are
// copied; a file of exactly 5 GiB is accepted.
const MaxFileUploadBytes = 5 * 1024 * 1024 * 1024

// MaxTrackNameLength bounds a track's hierarchical name.
const MaxTrackNameLength = 512

// TrackName validates a track's hierarchical name (e.g.
// "robot/pose/left-camera").
func TrackName(name string) error {
	if name == "" {
		return dlerrors.Invalid("track name cannot be empty")
	}
	if len(name) > MaxTrackNameLength {
		return dlerrors.Invalid("track name exceeds maximum length of %d", MaxTrackNameLength)
	}
	if strings.Contains(name, "\x00") {
		return dlerrors.Invalid("track name cannot contain null bytes")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return dlerrors.Invalid("track name cannot contain control characters")
		}
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		return dlerrors.Invalid("track name %q has malformed path separators", name)
	}
	return nil
}

// FilePrefix validates a file's logical path prefix, which must start
// with "/".
func FilePrefix(prefix string) error {
	if !strings.HasPrefix(prefix, "/") {
		return dlerrors.Invalid("file prefix %q must start with '/'", prefix)
	}
	if strings.Contains(prefix, "\x00") {
		return dlerrors.Invalid("file prefix cannot contain null bytes")
	}
	if strings.Contains(prefix, "..") {
		return dlerrors.Invalid("file prefix %q cannot contain '..'", prefix)
	}
	return nil
}

// FileSize validates an upload's size against the specification's 5
// GiB ceiling.
func FileSize(sizeBytes int64) error {
	if sizeBytes < 0 {
		return dlerrors.Invalid("file size cannot be negative")
	}
	if sizeBytes > MaxFileUploadBytes {
		return dlerrors.Invalid("file size %d exceeds maximum of %d bytes (5 GiB)", sizeBytes, MaxFileUploadBytes)
	}
	return nil
}

// Timestamp validates a resolved `_ts` value is a finite real number.
func Timestamp(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, checkFinite(n)
	case float32:
		return float64(n), checkFinite(float64(n))
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, dlerrors.Invalid("_ts must be a number, got %T", v)
	}
}

func checkFinite(f float64) error {
	if f != f { // NaN
		return dlerrors.Invalid("_ts cannot be NaN")
	}
	if math.IsInf(f, 0) {
		return dlerrors.Invalid("_ts is not finite")
	}
	return nil
}

// SafeDirName turns a hierarchical track name into a single
// filesystem-safe directory component, preserving the logical name in
// metadata.json rather than on disk. Grounded on spec.md §4.2's
// `safe(track_name)` contract: path separators are replaced so the
// hierarchical name collapses into one directory.
func SafeDirName(trackName string) string {
	return strings.ReplaceAll(trackName, "/", "_")
}
