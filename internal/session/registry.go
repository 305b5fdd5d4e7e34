// Package session tracks the active coordinating sessions in
// sessions.json: identity, display tag, heartbeat, and the index of
// task claims each session owns. It also reclaims state abandoned by
// crashed or idle sessions.
//
// Staleness is pull-based: eviction runs only when some process calls
// in, so thresholds are lower bounds, not guarantees.
package session

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/logging"
	"github.com/fenwick/warren/internal/state"
	"github.com/fenwick/warren/internal/store"
)

// DefaultTag is the tag meaning "no explicit tag requested"; sessions
// carrying it get an auto-assigned worker-<n> tag instead.
const DefaultTag = "main"

// Environment overrides honored by identity resolution.
const (
	EnvSessionID  = "WARREN_SESSION_ID"
	EnvSessionTag = "WARREN_SESSION_TAG"
)

// Registry manages the session table and its side files.
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

// Heartbeat registers the session on its first coordinating call and
// refreshes last_seen / tool_count on every subsequent one. It returns
// the session's display tag and whether the record was newly created.
//
// Tag assignment: an explicit non-default requestedTag wins; otherwise
// the tag stored for this session id in the side file is reused;
// otherwise the smallest unused worker-<n> is assigned and persisted
// so later calls from the same process skip the scan.
//
// Each heartbeat also runs the stale-session sweep: staleness is
// reconciled pull-style on coordinating calls, so a deployment that
// only heartbeats and claims still reclaims abandoned sessions and
// their claims. A sweep failure never fails the heartbeat.
func (r *Registry) Heartbeat(sessionID, requestedTag string) (string, bool, error) {
	if err := os.MkdirAll(r.cfg.StateDir, 0o755); err != nil {
		return "", false, fmt.Errorf("create state directory: %w", err)
	}

	tag := r.resolveTag(sessionID, requestedTag)

	created := false
	err := store.Update(r.cfg.SessionsFile(), r.cfg.LockTimeout(), r.logger,
		func(sessions state.Sessions) (state.Sessions, bool, error) {
			if sessions == nil {
				sessions = state.Sessions{}
			}
			now := r.now()
			if rec, ok := sessions[sessionID]; ok && rec != nil {
				rec.LastSeen = now
				rec.ToolCount++
			} else {
				sessions[sessionID] = &state.SessionRecord{
					Tag:          tag,
					Started:      now,
					LastSeen:     now,
					ToolCount:    1,
					ClaimedTasks: []string{},
				}
				created = true
			}
			return sessions, true, nil
		})
	if err != nil {
		return tag, false, err
	}

	if created {
		r.logger.Info("session registered", "session_id", sessionID, "tag", tag)
	}

	if _, err := r.EvictStale(); err != nil {
		r.logger.Warn("stale session sweep failed", "error", err.Error())
	}
	return tag, created, nil
}

// resolveTag picks the display tag for a session, consulting the
// explicit request, the side file, and finally the registry scan.
func (r *Registry) resolveTag(sessionID, requested string) string {
	if requested == "" {
		requested = os.Getenv(EnvSessionTag)
	}
	if requested != "" && requested != DefaultTag {
		return requested
	}

	// Side file format: "<session_id>:<tag>"
	if data, err := os.ReadFile(r.cfg.TagFile()); err == nil {
		if id, tag, ok := strings.Cut(strings.TrimSpace(string(data)), ":"); ok && id == sessionID && tag != "" {
			return tag
		}
	}

	sessions := store.LoadOrDefault[state.Sessions](r.cfg.SessionsFile())
	used := make(map[int]bool)
	for _, rec := range sessions {
		if rec == nil {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(rec.Tag, "worker-%d", &n); err == nil {
			used[n] = true
		}
	}
	n := 1
	for used[n] {
		n++
	}
	tag := fmt.Sprintf("worker-%d", n)

	if err := os.WriteFile(r.cfg.TagFile(), []byte(sessionID+":"+tag), 0o644); err != nil {
		r.logger.Warn("could not persist session tag", "error", err.Error())
	}
	r.logger.Info("auto-assigned session tag", "session_id", sessionID, "tag", tag)
	return tag
}

// Evicted reports one stale session removed by EvictStale or End.
type Evicted struct {
	ID            string
	Tag           string
	ReleasedTasks int
	ReleasedFiles int
}

// EvictStale removes every session whose last heartbeat is older than
// the configured threshold, releasing its task and file claims in the
// same multi-document transaction. An observer therefore never sees a
// removed session whose claims still exist: the claim tables are
// committed before the session table.
func (r *Registry) EvictStale() ([]Evicted, error) {
	return r.removeSessions(func(sessions state.Sessions) []string {
		return sessions.StaleIDs(r.now(), r.cfg.StaleSessionAfter())
	})
}

// End explicitly removes one session and everything it owns, with the
// same atomicity as stale eviction. Ending an unknown session is a
// no-op.
func (r *Registry) End(sessionID string) ([]Evicted, error) {
	return r.removeSessions(func(sessions state.Sessions) []string {
		if _, ok := sessions[sessionID]; !ok {
			return nil
		}
		return []string{sessionID}
	})
}

// removeSessions deletes the sessions selected by pick together with
// their claims, all under the sorted multi-document lock scope.
func (r *Registry) removeSessions(pick func(state.Sessions) []string) ([]Evicted, error) {
	paths := []string{r.cfg.SessionsFile(), r.cfg.TaskLocksFile(), r.cfg.FileLocksFile()}

	var evicted []Evicted
	err := store.UpdateMulti(paths, r.cfg.LockTimeout(), r.logger, func(tx *store.Tx) error {
		sessions := state.Sessions{}
		tx.Load(r.cfg.SessionsFile(), &sessions)

		ids := pick(sessions)
		if len(ids) == 0 {
			return nil
		}

		taskClaims := state.TaskClaims{}
		tx.Load(r.cfg.TaskLocksFile(), &taskClaims)
		fileClaims := state.FileClaims{}
		tx.Load(r.cfg.FileLocksFile(), &fileClaims)

		tasksChanged, filesChanged := false, false
		for _, id := range ids {
			tag := ""
			if rec := sessions[id]; rec != nil {
				tag = rec.Tag
			}
			tasks := taskClaims.ReleaseOwnedBy(id)
			files := fileClaims.ReleaseOwnedBy(id)
			tasksChanged = tasksChanged || len(tasks) > 0
			filesChanged = filesChanged || len(files) > 0
			delete(sessions, id)

			evicted = append(evicted, Evicted{
				ID:            id,
				Tag:           tag,
				ReleasedTasks: len(tasks),
				ReleasedFiles: len(files),
			})
			r.logger.Info("session removed",
				"session_id", id,
				"tag", tag,
				"released_tasks", len(tasks),
				"released_files", len(files),
			)
		}

		// Claims go first: a reader between commits may see a live
		// session without claims, never claims without a session.
		if tasksChanged {
			if err := tx.Store(r.cfg.TaskLocksFile(), taskClaims); err != nil {
				return err
			}
		}
		if filesChanged {
			if err := tx.Store(r.cfg.FileLocksFile(), fileClaims); err != nil {
				return err
			}
		}
		return tx.Store(r.cfg.SessionsFile(), sessions)
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

// Info is a point-in-time view of one session for listings.
type Info struct {
	ID           string
	Tag          string
	Started      time.Time
	LastSeen     time.Time
	ToolCount    int
	ClaimedTasks []string
	Active       bool
}

// List returns all registered sessions, most recently seen first.
// The read takes no lock: it may be slightly stale but never torn,
// because document writes are atomic renames.
func (r *Registry) List() []Info {
	sessions := store.LoadOrDefault[state.Sessions](r.cfg.SessionsFile())
	now := r.now()

	infos := make([]Info, 0, len(sessions))
	for id, rec := range sessions {
		if rec == nil {
			continue
		}
		infos = append(infos, Info{
			ID:           id,
			Tag:          rec.Tag,
			Started:      rec.Started,
			LastSeen:     rec.LastSeen,
			ToolCount:    rec.ToolCount,
			ClaimedTasks: rec.ClaimedTasks,
			Active:       now.Sub(rec.LastSeen) < r.cfg.ActiveWindow(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastSeen.After(infos[j].LastSeen)
	})
	return infos
}

// Others returns the active sessions other than sessionID, for the
// informational conflict notice printed on heartbeat.
func (r *Registry) Others(sessionID string) []Info {
	var others []Info
	for _, info := range r.List() {
		if info.Active && info.ID != sessionID {
			others = append(others, info)
		}
	}
	return others
}
