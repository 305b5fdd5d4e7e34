package lockfile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fenwick/warren/internal/logging"
)

// DefaultTimeout is the acquisition deadline for document locks.
// Long enough to ride out another process's read-modify-write, short
// enough that a wedged holder cannot stall an interactive caller.
const DefaultTimeout = 4 * time.Second

// Suffix is appended to a resource path to name its sidecar lock file.
const Suffix = ".lock"

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
)

// Handle is a process-local ownership token for one sidecar lock file.
// It is owned exclusively by the acquiring call stack and must be
// released exactly once on every exit path, normally via defer.
//
// A Handle that holds no lock (acquisition timed out, fail-open) is
// still valid: Release is a no-op for it.
type Handle struct {
	path string
	file *os.File // nil when proceeding without the lock
}

// SidecarPath returns the lock file path for a resource.
func SidecarPath(resource string) string {
	return resource + Suffix
}

// Acquire obtains an exclusive advisory lock on the sidecar for
// resource, creating the sidecar (and its parent directory) if needed.
//
// Acquisition is attempted non-blocking in a loop, backing off from
// 50ms by 1.5x up to 1s, until timeout elapses. On timeout a warning is
// logged and the returned handle reports Held() == false; the caller
// proceeds without mutual exclusion.
func Acquire(resource string, timeout time.Duration, logger *logging.Logger) *Handle {
	lockPath := SidecarPath(resource)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		logger.Warn("lock sidecar directory unavailable",
			"path", lockPath,
			"error", err.Error(),
		)
		return &Handle{path: lockPath}
	}

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for time.Now().Before(deadline) {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
		if err == nil {
			if lockErr := tryLock(f); lockErr == nil {
				return &Handle{path: lockPath, file: f}
			}
			_ = f.Close()
		}

		time.Sleep(backoff)
		backoff = backoff * 3 / 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	logger.Warn("lock acquisition timed out, proceeding without lock",
		"path", lockPath,
		"timeout", timeout.String(),
	)
	return &Handle{path: lockPath}
}

// Held reports whether the handle actually holds the OS lock.
// False means acquisition failed open and the caller is operating
// without mutual exclusion.
func (h *Handle) Held() bool {
	return h != nil && h.file != nil
}

// Path returns the sidecar lock file path.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Release unlocks and closes the sidecar. Safe to call multiple times
// and a no-op for handles that never held the lock.
func (h *Handle) Release() {
	if h == nil || h.file == nil {
		return
	}
	_ = unlock(h.file)
	_ = h.file.Close()
	h.file = nil
}
