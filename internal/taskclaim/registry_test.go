package taskclaim

import (
	"errors"
	"testing"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/state"
	"github.com/fenwick/warren/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Logging.Enabled = false
	return cfg
}

func TestTaskIDNormalization(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"case insensitive", "Fix the parser", "fix the parser", true},
		{"status marker stripped", "[in_progress] fix the parser", "fix the parser", true},
		{"whitespace collapsed", "fix   the\t parser", "fix the parser", true},
		{"surrounding space trimmed", "  fix the parser  ", "fix the parser", true},
		{"different text differs", "fix the parser", "fix the lexer", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idA, idB := TaskID(tt.a), TaskID(tt.b)
			if (idA == idB) != tt.same {
				t.Errorf("TaskID(%q)=%s TaskID(%q)=%s, same=%v", tt.a, idA, tt.b, idB, tt.same)
			}
		})
	}
}

func TestTaskIDShape(t *testing.T) {
	id := TaskID("anything")
	if len(id) != 16 {
		t.Errorf("expected 16 hex chars, got %q", id)
	}
}

func TestClaimAndReclaim(t *testing.T) {
	r := NewRegistry(testConfig(t), nil)

	conflict, err := r.Claim("fix the parser", "s1", "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}

	// Re-claiming one's own task refreshes, never conflicts.
	conflict, err = r.Claim("fix the parser", "s1", "worker-1")
	if err != nil {
		t.Fatal(err)
	}
	if conflict != nil {
		t.Errorf("self re-claim reported a conflict: %+v", conflict)
	}
}

func TestClaimConflictIsAdvisory(t *testing.T) {
	r := NewRegistry(testConfig(t), nil)

	if _, err := r.Claim("fix the parser", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}

	conflict, err := r.Claim("fix the parser", "s2", "worker-2")
	if err != nil {
		t.Fatalf("advisory conflict should not error: %v", err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict")
	}
	if conflict.HeldBy != "worker-1" {
		t.Errorf("conflict names %q, want worker-1", conflict.HeldBy)
	}

	// The losing claim must not disturb the table.
	claims := store.LoadOrDefault[state.TaskClaims](r.cfg.TaskLocksFile())
	if claim := claims[TaskID("fix the parser")]; claim == nil || claim.SessionID != "s1" {
		t.Errorf("conflicting claim mutated state: %+v", claim)
	}
}

func TestClaimConflictStrictMode(t *testing.T) {
	cfg := testConfig(t)
	r := NewRegistry(cfg, nil)
	if _, err := r.Claim("fix the parser", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}

	strict := NewRegistry(cfg, nil, WithStrict(true))
	conflict, err := strict.Claim("fix the parser", "s2", "worker-2")
	if !errors.Is(err, ErrClaimDenied) {
		t.Fatalf("expected ErrClaimDenied, got %v", err)
	}
	if conflict == nil || conflict.HeldBy != "worker-1" {
		t.Errorf("denial should still describe the holder: %+v", conflict)
	}
}

func TestStrictModeFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Claims.Strict = true

	r := NewRegistry(cfg, nil)
	if _, err := r.Claim("fix the parser", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Claim("fix the parser", "s2", "worker-2"); !errors.Is(err, ErrClaimDenied) {
		t.Errorf("configured strict mode not honored: %v", err)
	}
}

func TestClaimUpdatesSessionIndex(t *testing.T) {
	cfg := testConfig(t)
	r := NewRegistry(cfg, nil)

	seed := state.Sessions{
		"s1": {Tag: "worker-1", LastSeen: time.Now(), ClaimedTasks: []string{}},
	}
	if err := store.Write(cfg.SessionsFile(), seed); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Claim("fix the parser", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}

	sessions := store.LoadOrDefault[state.Sessions](cfg.SessionsFile())
	want := TaskID("fix the parser")
	if rec := sessions["s1"]; len(rec.ClaimedTasks) != 1 || rec.ClaimedTasks[0] != want {
		t.Errorf("session index not updated: %+v", rec.ClaimedTasks)
	}

	if _, err := r.Release("fix the parser", "s1"); err != nil {
		t.Fatal(err)
	}
	sessions = store.LoadOrDefault[state.Sessions](cfg.SessionsFile())
	if rec := sessions["s1"]; len(rec.ClaimedTasks) != 0 {
		t.Errorf("session index not cleared on release: %+v", rec.ClaimedTasks)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry(testConfig(t), nil)

	released, err := r.Release("never claimed", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if released {
		t.Error("releasing an unclaimed task reported a removal")
	}

	if _, err := r.Claim("fix the parser", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}
	released, err = r.Release("fix the parser", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !released {
		t.Error("expected the claim to be removed")
	}
	released, err = r.Release("fix the parser", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if released {
		t.Error("second release reported a removal")
	}
}

func TestCompleteRemovesClaim(t *testing.T) {
	r := NewRegistry(testConfig(t), nil)

	if _, err := r.Claim("fix the parser", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}

	removed, err := r.Complete("fix the parser", "s1")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !removed {
		t.Error("completing a claimed task should remove the claim")
	}

	claims := store.LoadOrDefault[state.TaskClaims](r.cfg.TaskLocksFile())
	if len(claims) != 0 {
		t.Errorf("claim table not empty after completion: %+v", claims)
	}

	// Completing again is the same no-op as a second release.
	removed, err = r.Complete("fix the parser", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("second completion reported a removal")
	}
}

func TestReleaseForeignClaimAllowed(t *testing.T) {
	r := NewRegistry(testConfig(t), nil)

	if _, err := r.Claim("fix the parser", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}

	// Foreign release is permitted (logged, not blocked).
	released, err := r.Release("fix the parser", "s2")
	if err != nil {
		t.Fatal(err)
	}
	if !released {
		t.Error("foreign release should still remove the claim")
	}
}

func TestContentPreviewTruncated(t *testing.T) {
	r := NewRegistry(testConfig(t), nil)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := r.Claim(string(long), "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}

	claims := r.List("")
	if len(claims) != 1 {
		t.Fatalf("expected one claim, got %d", len(claims))
	}
	if len(claims[0].TaskContent) != 100 {
		t.Errorf("preview not truncated: %d chars", len(claims[0].TaskContent))
	}
}

func TestListFilterByTag(t *testing.T) {
	r := NewRegistry(testConfig(t), nil)

	if _, err := r.Claim("task one", "s1", "worker-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Claim("task two", "s2", "worker-2"); err != nil {
		t.Fatal(err)
	}

	all := r.List("")
	if len(all) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(all))
	}
	mine := r.List("worker-2")
	if len(mine) != 1 || mine[0].SessionTag != "worker-2" {
		t.Errorf("tag filter failed: %+v", mine)
	}
}
