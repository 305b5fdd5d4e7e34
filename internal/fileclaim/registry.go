// Package fileclaim tracks advisory per-file editing claims in
// file_locks.json, keyed by canonical filesystem path.
//
// Unlike task claims, staleness here is TTL-based rather than
// session-liveness-based: a claim untouched for longer than the
// configured TTL is treated as abandoned and may be silently taken
// over by a new claimant even if the owning session is still alive.
// This favors forward progress over strict ownership when a session
// goes idle mid-edit.
package fileclaim

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/logging"
	"github.com/fenwick/warren/internal/state"
	"github.com/fenwick/warren/internal/store"
)

// Conflict describes a live claim held by a different session.
type Conflict struct {
	File   string // path as the caller supplied it
	HeldBy string // owner's display tag
	Since  time.Time
}

// Registry manages the file claim table.
type Registry struct {
	cfg    *config.Config
	logger *logging.Logger
	now    func() time.Time
}

// NewRegistry creates a Registry over the configured state directory.
// The logger may be nil.
func NewRegistry(cfg *config.Config, logger *logging.Logger) *Registry {
	return &Registry{cfg: cfg, logger: logger, now: time.Now}
}

// CanonicalPath resolves a path to its claim key: absolute, with
// symlinks resolved when the target exists.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Claim records ownership of path for the given session.
//
// Re-claiming a file the session already owns refreshes last_touched.
// A foreign claim past the TTL is silently overwritten. A live foreign
// claim leaves state unchanged and returns the Conflict describing the
// holder.
func (r *Registry) Claim(path, sessionID, sessionTag string) (*Conflict, error) {
	key := CanonicalPath(path)

	var conflict *Conflict
	err := store.Update(r.cfg.FileLocksFile(), r.cfg.LockTimeout(), r.logger,
		func(claims state.FileClaims) (state.FileClaims, bool, error) {
			if claims == nil {
				claims = state.FileClaims{}
			}
			now := r.now()

			if existing, ok := claims[key]; ok {
				if existing.SessionID == sessionID {
					existing.LastTouched = now
					return claims, true, nil
				}
				if now.Sub(existing.LastTouched) <= r.cfg.FileClaimTTL() {
					conflict = &Conflict{
						File:   path,
						HeldBy: existing.SessionTag,
						Since:  existing.ClaimedAt,
					}
					return claims, false, nil
				}
				r.logger.Info("taking over stale file claim",
					"path", key,
					"previous_owner", existing.SessionTag,
					"new_owner", sessionTag,
				)
			}

			claims[key] = &state.FileClaim{
				SessionID:   sessionID,
				SessionTag:  sessionTag,
				ClaimedAt:   now,
				LastTouched: now,
				FilePath:    path,
			}
			return claims, true, nil
		})
	return conflict, err
}

// Release removes the session's claim on path. Returns false when the
// file is unclaimed or owned by a different session; foreign claims
// are never released here (use the TTL takeover in Claim instead).
func (r *Registry) Release(path, sessionID string) (bool, error) {
	key := CanonicalPath(path)

	released := false
	err := store.Update(r.cfg.FileLocksFile(), r.cfg.LockTimeout(), r.logger,
		func(claims state.FileClaims) (state.FileClaims, bool, error) {
			existing, ok := claims[key]
			if !ok || existing.SessionID != sessionID {
				return claims, false, nil
			}
			delete(claims, key)
			released = true
			return claims, true, nil
		})
	return released, err
}

// ReleaseAll removes every claim owned by the session, returning the
// released display paths. Used by session-end cleanup.
func (r *Registry) ReleaseAll(sessionID string) ([]string, error) {
	var released []string
	err := store.Update(r.cfg.FileLocksFile(), r.cfg.LockTimeout(), r.logger,
		func(claims state.FileClaims) (state.FileClaims, bool, error) {
			released = claims.ReleaseOwnedBy(sessionID)
			return claims, len(released) > 0, nil
		})
	if err != nil {
		return nil, err
	}
	sort.Strings(released)
	return released, nil
}

// Check reports whether path is claimed by a live foreign session,
// without mutating anything. Used by the pre-edit conflict probe.
// Returns nil for unclaimed, self-owned, and TTL-expired claims.
func (r *Registry) Check(path, sessionID string) *Conflict {
	key := CanonicalPath(path)
	claims := store.LoadOrDefault[state.FileClaims](r.cfg.FileLocksFile())

	existing, ok := claims[key]
	if !ok || existing.SessionID == sessionID {
		return nil
	}
	if r.now().Sub(existing.LastTouched) > r.cfg.FileClaimTTL() {
		return nil
	}
	return &Conflict{
		File:   path,
		HeldBy: existing.SessionTag,
		Since:  existing.ClaimedAt,
	}
}

// ForSession returns the display paths of all files claimed by the
// session, sorted for deterministic output.
func (r *Registry) ForSession(sessionID string) []string {
	claims := store.LoadOrDefault[state.FileClaims](r.cfg.FileLocksFile())

	var files []string
	for key, claim := range claims {
		if claim == nil || claim.SessionID != sessionID {
			continue
		}
		if claim.FilePath != "" {
			files = append(files, claim.FilePath)
		} else {
			files = append(files, key)
		}
	}
	sort.Strings(files)
	return files
}

// ClaimInfo is a point-in-time view of one claim for listings.
type ClaimInfo struct {
	Path        string
	SessionID   string
	SessionTag  string
	ClaimedAt   time.Time
	LastTouched time.Time
}

// List returns all current claims sorted by path. The read takes no
// lock.
func (r *Registry) List() []ClaimInfo {
	claims := store.LoadOrDefault[state.FileClaims](r.cfg.FileLocksFile())

	infos := make([]ClaimInfo, 0, len(claims))
	for key, claim := range claims {
		if claim == nil {
			continue
		}
		path := claim.FilePath
		if path == "" {
			path = key
		}
		infos = append(infos, ClaimInfo{
			Path:        path,
			SessionID:   claim.SessionID,
			SessionTag:  claim.SessionTag,
			ClaimedAt:   claim.ClaimedAt,
			LastTouched: claim.LastTouched,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})
	return infos
}
