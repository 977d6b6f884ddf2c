package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to a temp file beside path and renames it over
// path, so a reader never observes a half-written file. Grounded on
// the write-temp-then-rename idiom used for blob metadata writes in
// kilupskalvis-wvc's internal/remote/blobstore/fs.go; there is no
// third-party atomic-file-replace library in the retrieval pack, so
// this stays on os.Rename, whose atomicity-on-same-filesystem guarantee
// is exactly what spec §5's "write-temp + rename" contract asks for.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("fsatomic: create temp file in %q: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsatomic: rename temp file over %q: %w", path, err)
	}
	return nil
}

// WriteJSON marshals v and atomically replaces path with the result.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsatomic: marshal JSON for %q: %w", path, err)
	}
	return WriteFile(path, data, 0o644)
}
