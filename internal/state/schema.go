// Package state defines the schemas of the shared JSON documents that
// coordinate warren sessions: the session registry, the task claim
// table, and the file claim table. Registries in sibling packages
// read and mutate these documents under their sidecar locks; keeping
// the schemas in one place lets cross-registry transactions (stale
// session eviction, session end) see every table without import
// cycles.
//
// The work queue document is private to the workqueue package; no
// other component touches it.
package state

import "time"

// SessionRecord describes one active coordinating session in
// sessions.json. Created on a session's first coordinating call,
// refreshed by every subsequent call, removed on explicit end or
// stale eviction.
type SessionRecord struct {
	// Tag is the display name, unique among concurrently active
	// sessions (e.g. "worker-2").
	Tag string `json:"tag"`

	// Started is when the session first registered.
	Started time.Time `json:"started"`

	// LastSeen is the most recent heartbeat.
	LastSeen time.Time `json:"last_seen"`

	// ToolCount is incremented on every coordinating call.
	ToolCount int `json:"tool_count"`

	// ClaimedTasks indexes the task claims owned by this session.
	// Kept consistent opportunistically with the task claim table.
	ClaimedTasks []string `json:"claimed_tasks"`
}

// Sessions is the sessions.json document: session id to record.
type Sessions map[string]*SessionRecord

// StaleIDs returns the ids of sessions whose last heartbeat is older
// than threshold at the given instant. A null record has no heartbeat
// at all and is treated as stale.
func (s Sessions) StaleIDs(now time.Time, threshold time.Duration) []string {
	var stale []string
	for id, rec := range s {
		if rec == nil {
			stale = append(stale, id)
			continue
		}
		if now.Sub(rec.LastSeen) > threshold {
			stale = append(stale, id)
		}
	}
	return stale
}

// TaskClaim maps a content-derived task id to its claiming session in
// task_locks.json. At most one claim exists per task id.
type TaskClaim struct {
	SessionID  string    `json:"session_id"`
	SessionTag string    `json:"session_tag"`
	ClaimedAt  time.Time `json:"claimed_at"`

	// TaskContent is a truncated copy of the claimed task text, kept
	// for human-readable conflict reports.
	TaskContent string `json:"task_content"`
}

// TaskClaims is the task_locks.json document: task id to claim.
type TaskClaims map[string]*TaskClaim

// ReleaseOwnedBy removes every claim owned by sessionID from the
// table, returning the ids released.
func (t TaskClaims) ReleaseOwnedBy(sessionID string) []string {
	var released []string
	for taskID, claim := range t {
		if claim != nil && claim.SessionID == sessionID {
			delete(t, taskID)
			released = append(released, taskID)
		}
	}
	return released
}

// FileClaim maps a canonical filesystem path to its claiming session
// in file_locks.json. Subject to a TTL measured from LastTouched.
type FileClaim struct {
	SessionID  string    `json:"session_id"`
	SessionTag string    `json:"session_tag"`
	ClaimedAt  time.Time `json:"claimed_at"`

	// LastTouched is refreshed each time the owner re-claims the
	// file; staleness is measured from here, not from ClaimedAt.
	LastTouched time.Time `json:"last_touched"`

	// FilePath is the path as the caller supplied it, for display.
	// The map key is the canonical (symlink-resolved absolute) form.
	FilePath string `json:"file_path"`
}

// FileClaims is the file_locks.json document: canonical path to claim.
type FileClaims map[string]*FileClaim

// ReleaseOwnedBy removes every claim owned by sessionID from the
// table, returning the display paths released.
func (f FileClaims) ReleaseOwnedBy(sessionID string) []string {
	var released []string
	for key, claim := range f {
		if claim != nil && claim.SessionID == sessionID {
			delete(f, key)
			path := claim.FilePath
			if path == "" {
				path = key
			}
			released = append(released, path)
		}
	}
	return released
}
