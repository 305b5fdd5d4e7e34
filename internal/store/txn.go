package store

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/fenwick/warren/internal/lockfile"
	"github.com/fenwick/warren/internal/logging"
)

// Update runs fn on the document at path inside its sidecar lock scope.
//
// fn receives the current document (the zero value of T when no prior
// state exists) and returns the replacement, whether to commit it, and
// an error. The commit happens while the lock is still held; if fn
// declines or fails, no write occurs. The lock is released on every
// exit path. If lock acquisition times out, the operation proceeds
// without the lock (a warning is logged by the lock manager).
func Update[T any](path string, timeout time.Duration, logger *logging.Logger, fn func(doc T) (T, bool, error)) error {
	h := lockfile.Acquire(path, timeout, logger)
	defer h.Release()

	doc := LoadOrDefault[T](path)
	updated, commit, err := fn(doc)
	if err != nil {
		return err
	}
	if !commit {
		return nil
	}
	return Write(path, updated)
}

// Tx exposes the documents of a multi-document transaction while their
// locks are held. Loads absorb missing/corrupt state into the caller's
// default; Stores write atomically and immediately.
type Tx struct {
	held bool
}

// Locked reports whether every lock in the transaction was actually
// acquired. False means at least one acquisition failed open and the
// transaction ran with reduced consistency.
func (tx *Tx) Locked() bool {
	return tx.held
}

// Load reads the document at path into v, leaving v untouched when the
// file is missing, unreadable, or fails to parse.
func (tx *Tx) Load(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil || !json.Valid(data) {
		return
	}
	_ = json.Unmarshal(data, v)
}

// Store atomically writes v to path while the transaction's locks are
// still held.
func (tx *Tx) Store(path string, v any) error {
	return Write(path, v)
}

// UpdateMulti runs fn with the sidecar locks of all paths held.
//
// Locks are acquired in ascending lexicographic order of path, never
// caller order, and released in reverse acquisition order on every
// exit path. Sorted acquisition is the deadlock-avoidance mechanism:
// two transactions requesting the same documents in different orders
// still lock them in one global order underneath, so no circular wait
// can form.
func UpdateMulti(paths []string, timeout time.Duration, logger *logging.Logger, fn func(tx *Tx) error) error {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	handles := make([]*lockfile.Handle, 0, len(sorted))
	defer func() {
		for i := len(handles) - 1; i >= 0; i-- {
			handles[i].Release()
		}
	}()

	held := true
	for _, p := range sorted {
		h := lockfile.Acquire(p, timeout, logger)
		handles = append(handles, h)
		if !h.Held() {
			held = false
		}
	}

	return fn(&Tx{held: held})
}
