package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fenwick/warren/internal/state"
	"github.com/fenwick/warren/internal/store"
)

// A side-file id is only reused while its session is still warm in the
// registry; beyond this window a fresh invocation is a new session.
const idReuseWindow = 5 * time.Minute

// ResolveID returns a session id that is stable for the lifetime of the
// calling session. Resolution order: the WARREN_SESSION_ID environment
// override, the persisted side-file id (validated against the registry
// heartbeat), and finally a fresh process-derived id, which is persisted
// for subsequent calls from the same session.
func (r *Registry) ResolveID() string {
	if id := os.Getenv(EnvSessionID); id != "" {
		return id
	}

	if err := os.MkdirAll(r.cfg.StateDir, 0o755); err != nil {
		r.logger.Warn("could not create state directory", "error", err.Error())
	}

	if data, err := os.ReadFile(r.cfg.IDFile()); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			sessions := store.LoadOrDefault[state.Sessions](r.cfg.SessionsFile())
			if rec, ok := sessions[id]; ok && r.now().Sub(rec.LastSeen) < idReuseWindow {
				return id
			}
		}
	}

	raw := fmt.Sprintf("%d-%d-%s", os.Getpid(), os.Getppid(), r.now().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(raw))
	id := hex.EncodeToString(sum[:])[:12]

	if err := os.WriteFile(r.cfg.IDFile(), []byte(id), 0o644); err != nil {
		r.logger.Warn("could not persist session id", "error", err.Error())
	}
	return id
}
