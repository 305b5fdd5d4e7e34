package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Sentinel errors classifying document I/O failures.
var (
	// ErrNotFound indicates the document file does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrCorrupt indicates the document file exists but is not valid JSON.
	ErrCorrupt = errors.New("document is not valid JSON")

	// ErrWriteFailed indicates the document could not be durably written.
	// The previously committed document is untouched.
	ErrWriteFailed = errors.New("document write failed")
)

// TmpSuffix is appended to a document path to name its staging file.
const TmpSuffix = ".tmp"

// Rename over a target transiently opened by another reader can fail on
// some platforms; retry briefly before surfacing the failure.
const (
	renameAttempts = 3
	renameBackoff  = 100 * time.Millisecond
)

// Load reads the JSON document at path into v.
// Returns ErrNotFound if the file is missing and ErrCorrupt if it does
// not parse; v is left in its zero/default state in both cases.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if !json.Valid(data) {
		return fmt.Errorf("%w: %s", ErrCorrupt, path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

// LoadOrDefault reads the JSON document at path, returning the zero
// value of T when the file is missing, unreadable, or fails to parse.
// Corruption is "no prior state", not an error: this path never fails.
func LoadOrDefault[T any](path string) T {
	var doc T
	if err := Load(path, &doc); err != nil {
		var zero T
		return zero
	}
	return doc
}

// Write serializes v as pretty-printed JSON and atomically replaces the
// document at path via a staging file in the same directory. On any
// failure the staging file is cleaned up, the committed document is left
// untouched, and the returned error wraps ErrWriteFailed.
func Write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create directory for %s: %v", ErrWriteFailed, path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrWriteFailed, path, err)
	}

	tmp := path + TmpSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: stage %s: %v", ErrWriteFailed, path, err)
	}

	if err := replace(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", ErrWriteFailed, path, err)
	}
	return nil
}

// replace renames tmp over target, retrying briefly on failure.
// Rename is atomic on POSIX; on Windows it can transiently fail while
// another process has the target open.
func replace(tmp, target string) error {
	var err error
	for attempt := 1; attempt <= renameAttempts; attempt++ {
		if err = os.Rename(tmp, target); err == nil {
			return nil
		}
		if attempt < renameAttempts {
			time.Sleep(renameBackoff * time.Duration(attempt))
		}
	}
	return err
}
