// Package lockfile provides cross-process mutual exclusion via OS-level
// advisory locks on sidecar files.
//
// Each shared document gets a sidecar named "<document>.lock" whose sole
// purpose is to be locked; its contents are irrelevant. Acquisition is
// non-blocking with exponential backoff up to a deadline. On timeout the
// acquire "fails open": it returns a handle that holds no lock, and the
// caller proceeds without mutual exclusion. A hung lock must never block
// the interactive host process indefinitely, so liveness wins over strict
// consistency here. Callers can distinguish the two outcomes via
// [Handle.Held].
//
// # Basic Usage
//
//	h := lockfile.Acquire("state/sessions.json", lockfile.DefaultTimeout, logger)
//	defer h.Release()
//	if !h.Held() {
//		// proceeding without the lock; reduced consistency
//	}
//
// The exclusive lock is advisory: it coordinates cooperating warren
// processes on one machine (or a shared mount) and offers no protection
// against processes that do not participate.
package lockfile
