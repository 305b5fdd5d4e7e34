// Package taskclaim maps content-derived task identifiers to the
// sessions that claimed them, enforcing at-most-one-claimant and
// reporting conflicts.
//
// Claims are content-addressed: the key is a stable hash of the
// normalized task text, so two processes independently referring to
// "the same" task text converge on one claim key without prior
// coordination. Conflicts are advisory by default (reported, not
// denied); strict mode turns them into hard denials.
package taskclaim

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/logging"
	"github.com/fenwick/warren/internal/state"
	"github.com/fenwick/warren/internal/store"
)

// ErrClaimDenied is returned for a conflicting claim in strict mode.
var ErrClaimDenied = errors.New("task already claimed by another session")

// Claimed task text is truncated to this length in the claim record.
const contentPreviewLen = 100

// statusMarker matches a leading "[...]" status prefix in task text.
var statusMarker = regexp.MustCompile(`^\[.*?\]\s*`)

// whitespace collapses runs of whitespace during normalization.
var whitespace = regexp.MustCompile(`\s+`)

// TaskID derives the content-addressed claim key for a task: the text
// is lowercased, a leading [status] marker is stripped, whitespace is
// collapsed, and the result is hashed. Two semantically distinct tasks
// with identical normalized text intentionally collide: the key is an
// idempotency key, and convergence without coordination is the point.
func TaskID(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	normalized = statusMarker.ReplaceAllString(normalized, "")
	normalized = whitespace.ReplaceAllString(normalized, " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// Conflict describes a claim held by a different session.
type Conflict struct {
	TaskID      string
	HeldBy      string // owner's display tag
	ClaimedAt   time.Time
	TaskContent string
}

// Registry manages the task claim table and the per-session claim
// index in the session table.
type Registry struct {
	cfg    *config.Config
	logger *logging.Logger
	strict bool
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithStrict overrides the configured conflict policy: when strict,
// conflicting claims are denied with ErrClaimDenied instead of being
// reported as advisory warnings.
func WithStrict(strict bool) Option {
	return func(r *Registry) {
		r.strict = strict
	}
}

// NewRegistry creates a Registry over the configured state directory.
// The logger may be nil.
func NewRegistry(cfg *config.Config, logger *logging.Logger, opts ...Option) *Registry {
	r := &Registry{
		cfg:    cfg,
		logger: logger,
		strict: cfg.Claims.Strict,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Claim records ownership of the task described by content for the
// given session. If the task is unclaimed or already owned by this
// session the claim is inserted or refreshed and the session's claim
// index is updated in the same transaction.
//
// If another session holds the claim, no state changes: the returned
// Conflict describes the holder. In the default advisory mode the
// error is nil (warn-only); in strict mode it is ErrClaimDenied.
func (r *Registry) Claim(content, sessionID, sessionTag string) (*Conflict, error) {
	taskID := TaskID(content)
	paths := []string{r.cfg.TaskLocksFile(), r.cfg.SessionsFile()}

	var conflict *Conflict
	err := store.UpdateMulti(paths, r.cfg.LockTimeout(), r.logger, func(tx *store.Tx) error {
		claims := state.TaskClaims{}
		tx.Load(r.cfg.TaskLocksFile(), &claims)

		if existing, ok := claims[taskID]; ok && existing.SessionID != sessionID {
			conflict = &Conflict{
				TaskID:      taskID,
				HeldBy:      existing.SessionTag,
				ClaimedAt:   existing.ClaimedAt,
				TaskContent: existing.TaskContent,
			}
			r.logger.Warn("task claim conflict",
				"task_id", taskID,
				"held_by", existing.SessionTag,
				"requested_by", sessionTag,
			)
			return nil
		}

		preview := content
		if len(preview) > contentPreviewLen {
			preview = preview[:contentPreviewLen]
		}
		claims[taskID] = &state.TaskClaim{
			SessionID:   sessionID,
			SessionTag:  sessionTag,
			ClaimedAt:   r.now(),
			TaskContent: preview,
		}
		if err := tx.Store(r.cfg.TaskLocksFile(), claims); err != nil {
			return err
		}

		sessions := state.Sessions{}
		tx.Load(r.cfg.SessionsFile(), &sessions)
		if rec := sessions[sessionID]; rec != nil && !contains(rec.ClaimedTasks, taskID) {
			rec.ClaimedTasks = append(rec.ClaimedTasks, taskID)
			return tx.Store(r.cfg.SessionsFile(), sessions)
		}
		return nil
	})
	if err != nil {
		return conflict, err
	}
	if conflict != nil && r.strict {
		return conflict, fmt.Errorf("%w: @%s", ErrClaimDenied, conflict.HeldBy)
	}
	return conflict, nil
}

// Release removes the claim for the task described by content. The
// removal is idempotent: releasing an unclaimed task is a no-op, and
// releasing a claim owned by a different session is permitted but
// logged. Returns whether a claim was actually removed.
func (r *Registry) Release(content, sessionID string) (bool, error) {
	return r.ReleaseID(TaskID(content), sessionID)
}

// ReleaseID is Release keyed directly by claim id.
func (r *Registry) ReleaseID(taskID, sessionID string) (bool, error) {
	paths := []string{r.cfg.TaskLocksFile(), r.cfg.SessionsFile()}

	released := false
	err := store.UpdateMulti(paths, r.cfg.LockTimeout(), r.logger, func(tx *store.Tx) error {
		claims := state.TaskClaims{}
		tx.Load(r.cfg.TaskLocksFile(), &claims)

		existing, ok := claims[taskID]
		if ok {
			if existing != nil && existing.SessionID != sessionID {
				r.logger.Warn("releasing claim owned by another session",
					"task_id", taskID,
					"owner", existing.SessionTag,
				)
			}
			delete(claims, taskID)
			released = true
			if err := tx.Store(r.cfg.TaskLocksFile(), claims); err != nil {
				return err
			}
		}

		sessions := state.Sessions{}
		tx.Load(r.cfg.SessionsFile(), &sessions)
		if rec := sessions[sessionID]; rec != nil && contains(rec.ClaimedTasks, taskID) {
			rec.ClaimedTasks = remove(rec.ClaimedTasks, taskID)
			return tx.Store(r.cfg.SessionsFile(), sessions)
		}
		return nil
	})
	return released, err
}

// Complete marks the task described by content as finished for this
// session. Completion and release converge on the same table mutation:
// a claim table tracks only in-progress work, so finishing a task and
// abandoning it both end with the claim removed.
func (r *Registry) Complete(content, sessionID string) (bool, error) {
	return r.ReleaseID(TaskID(content), sessionID)
}

// ClaimInfo is a point-in-time view of one claim for listings.
type ClaimInfo struct {
	TaskID      string
	SessionID   string
	SessionTag  string
	ClaimedAt   time.Time
	TaskContent string
}

// List returns all current claims, oldest first, optionally filtered
// by owning session tag. The read takes no lock.
func (r *Registry) List(tag string) []ClaimInfo {
	claims := store.LoadOrDefault[state.TaskClaims](r.cfg.TaskLocksFile())

	infos := make([]ClaimInfo, 0, len(claims))
	for id, claim := range claims {
		if claim == nil || (tag != "" && claim.SessionTag != tag) {
			continue
		}
		infos = append(infos, ClaimInfo{
			TaskID:      id,
			SessionID:   claim.SessionID,
			SessionTag:  claim.SessionTag,
			ClaimedAt:   claim.ClaimedAt,
			TaskContent: claim.TaskContent,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ClaimedAt.Before(infos[j].ClaimedAt)
	})
	return infos
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
