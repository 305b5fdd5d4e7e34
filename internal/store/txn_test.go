package store

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fenwick/warren/internal/lockfile"
)

type counter struct {
	N int `json:"n"`
}

func TestUpdateCreatesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")

	err := Update(path, lockfile.DefaultTimeout, nil, func(doc counter) (counter, bool, error) {
		if doc.N != 0 {
			t.Errorf("expected zero value for missing document, got %+v", doc)
		}
		doc.N = 1
		return doc, true, nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if got := LoadOrDefault[counter](path); got.N != 1 {
		t.Errorf("got %d, want 1", got.N)
	}
}

func TestUpdateDeclineDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	if err := Write(path, counter{N: 5}); err != nil {
		t.Fatal(err)
	}

	err := Update(path, lockfile.DefaultTimeout, nil, func(doc counter) (counter, bool, error) {
		doc.N = 99
		return doc, false, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := LoadOrDefault[counter](path); got.N != 5 {
		t.Errorf("declined update mutated the document: %d", got.N)
	}
}

func TestUpdateErrorDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	if err := Write(path, counter{N: 5}); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("boom")
	err := Update(path, lockfile.DefaultTimeout, nil, func(doc counter) (counter, bool, error) {
		doc.N = 99
		return doc, true, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn's error, got %v", err)
	}

	if got := LoadOrDefault[counter](path); got.N != 5 {
		t.Errorf("failed update mutated the document: %d", got.N)
	}
}

func TestUpdateConcurrentIncrements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")

	const goroutines = 8
	const increments = 10

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range increments {
				err := Update(path, 30*time.Second, nil, func(doc counter) (counter, bool, error) {
					doc.N++
					return doc, true, nil
				})
				if err != nil {
					t.Errorf("Update failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := LoadOrDefault[counter](path); got.N != goroutines*increments {
		t.Errorf("lost updates: got %d, want %d", got.N, goroutines*increments)
	}
}

func TestUpdateMultiOrdersLocks(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	// Two transactions over the same pair in opposite caller order.
	// Sorted acquisition means neither can deadlock the other.
	var wg sync.WaitGroup
	for _, paths := range [][]string{{a, b}, {b, a}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				err := UpdateMulti(paths, 30*time.Second, nil, func(tx *Tx) error {
					var ca, cb counter
					tx.Load(a, &ca)
					tx.Load(b, &cb)
					ca.N++
					cb.N++
					if err := tx.Store(a, ca); err != nil {
						return err
					}
					return tx.Store(b, cb)
				})
				if err != nil {
					t.Errorf("UpdateMulti failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	ca := LoadOrDefault[counter](a)
	cb := LoadOrDefault[counter](b)
	if ca.N != 40 || cb.N != 40 {
		t.Errorf("lost updates: a=%d b=%d, want 40 each", ca.N, cb.N)
	}
}

func TestTxLoadAbsorbsMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	err := UpdateMulti([]string{path}, lockfile.DefaultTimeout, nil, func(tx *Tx) error {
		doc := counter{N: 7}
		tx.Load(filepath.Join(dir, "missing.json"), &doc)
		if doc.N != 7 {
			t.Errorf("Load of missing file disturbed default: %+v", doc)
		}
		if !tx.Locked() {
			t.Error("expected the transaction to hold its lock")
		}
		return tx.Store(path, doc)
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := LoadOrDefault[counter](path); got.N != 7 {
		t.Errorf("got %d, want 7", got.N)
	}
}
