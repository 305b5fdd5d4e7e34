package lockfile

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "doc.json")

	h := Acquire(resource, DefaultTimeout, nil)
	if !h.Held() {
		t.Fatal("expected lock to be held")
	}
	if h.Path() != resource+Suffix {
		t.Errorf("unexpected sidecar path: %s", h.Path())
	}
	h.Release()

	// Released locks can be re-acquired immediately.
	h2 := Acquire(resource, DefaultTimeout, nil)
	if !h2.Held() {
		t.Fatal("expected lock to be re-acquirable after release")
	}
	h2.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "doc.json")

	h := Acquire(resource, DefaultTimeout, nil)
	h.Release()
	h.Release()

	var nilHandle *Handle
	nilHandle.Release()
}

func TestContendedAcquireFailsOpen(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "doc.json")

	holder := Acquire(resource, DefaultTimeout, nil)
	if !holder.Held() {
		t.Fatal("expected first acquisition to succeed")
	}
	defer holder.Release()

	// Flock conflicts apply per open file description, so a second
	// open in the same process contends like another process would.
	start := time.Now()
	h := Acquire(resource, 200*time.Millisecond, nil)
	elapsed := time.Since(start)

	if h.Held() {
		t.Fatal("expected contended acquisition to fail")
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("acquisition gave up before the deadline: %v", elapsed)
	}

	// The fail-open handle is inert.
	h.Release()
}

func TestAcquireAfterHolderReleases(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "doc.json")

	holder := Acquire(resource, DefaultTimeout, nil)
	done := make(chan *Handle)
	go func() {
		done <- Acquire(resource, 2*time.Second, nil)
	}()

	time.Sleep(100 * time.Millisecond)
	holder.Release()

	h := <-done
	if !h.Held() {
		t.Fatal("expected waiter to acquire after release")
	}
	h.Release()
}

func TestAcquireCreatesParentDirectory(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "nested", "deeper", "doc.json")

	h := Acquire(resource, DefaultTimeout, nil)
	if !h.Held() {
		t.Fatal("expected acquisition to create the parent directory")
	}
	h.Release()
}
