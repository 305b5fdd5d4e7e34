package state

import (
	"encoding/json"
	"testing"
	"time"
)

// A document corrupted by a partial edit can hold an explicit null for
// a record, which unmarshals to a nil map value. The table helpers
// treat such entries as absent rather than panicking.

func TestStaleIDsSkipsNullRecords(t *testing.T) {
	now := time.Now()
	live := now.Add(-5 * time.Minute).Format(time.RFC3339)

	var sessions Sessions
	raw := `{"ghost": null, "live": {"tag": "worker-1", "last_seen": "` + live + `"}}`
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		t.Fatal(err)
	}

	stale := sessions.StaleIDs(now, 30*time.Minute)
	if len(stale) != 1 || stale[0] != "ghost" {
		t.Errorf("expected only the null record reported stale, got %v", stale)
	}
}

func TestTaskClaimsReleaseSkipsNullRecords(t *testing.T) {
	var claims TaskClaims
	raw := `{"ghost": null, "t1": {"session_id": "s1"}, "t2": {"session_id": "s2"}}`
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		t.Fatal(err)
	}

	released := claims.ReleaseOwnedBy("s1")
	if len(released) != 1 || released[0] != "t1" {
		t.Errorf("expected only t1 released, got %v", released)
	}
	if _, ok := claims["ghost"]; !ok {
		t.Error("null record should be left in place for its owner table")
	}
}

func TestFileClaimsReleaseSkipsNullRecords(t *testing.T) {
	var claims FileClaims
	raw := `{"ghost": null, "/tmp/a.go": {"session_id": "s1", "file_path": "/tmp/a.go"}}`
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		t.Fatal(err)
	}

	released := claims.ReleaseOwnedBy("s1")
	if len(released) != 1 || released[0] != "/tmp/a.go" {
		t.Errorf("expected only the owned path released, got %v", released)
	}
}
