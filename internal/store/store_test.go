package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	want := testDoc{Name: "alpha", Count: 3}
	if err := Write(path, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var got testDoc
	if err := Load(path, &got); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	var doc testDoc
	err := Load(path, &doc)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if doc != (testDoc{}) {
		t.Errorf("document mutated on missing file: %+v", doc)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var doc testDoc
	err := Load(path, &doc)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	missing := LoadOrDefault[testDoc](filepath.Join(dir, "missing.json"))
	if missing != (testDoc{}) {
		t.Errorf("missing file should yield zero value, got %+v", missing)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("]["), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := LoadOrDefault[testDoc](corrupt); got != (testDoc{}) {
		t.Errorf("corrupt file should yield zero value, got %+v", got)
	}

	valid := filepath.Join(dir, "valid.json")
	if err := Write(valid, testDoc{Name: "beta", Count: 1}); err != nil {
		t.Fatal(err)
	}
	if got := LoadOrDefault[testDoc](valid); got.Name != "beta" {
		t.Errorf("valid file not loaded: %+v", got)
	}
}

func TestWriteReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	if err := Write(path, testDoc{Name: "first", Count: 1}); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, testDoc{Name: "second", Count: 2}); err != nil {
		t.Fatal(err)
	}

	var got testDoc
	if err := Load(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "second" || got.Count != 2 {
		t.Errorf("got %+v, want the second write", got)
	}

	// No staging file left behind.
	if _, err := os.Stat(path + TmpSuffix); !os.IsNotExist(err) {
		t.Error("staging file survived a successful write")
	}
}

func TestLoadIgnoresInterruptedStagingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	want := testDoc{Name: "committed", Count: 7}
	if err := Write(path, want); err != nil {
		t.Fatal(err)
	}

	// A writer that died between staging and rename leaves a truncated
	// staging file beside the committed document.
	if err := os.WriteFile(path+TmpSuffix, []byte(`{"name": "half`), 0o644); err != nil {
		t.Fatal(err)
	}

	var got testDoc
	if err := Load(path, &got); err != nil {
		t.Fatalf("Load failed with leftover staging file: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want the committed document %+v", got, want)
	}

	// The next write goes through and supersedes the leftover.
	if err := Write(path, testDoc{Name: "next", Count: 8}); err != nil {
		t.Fatalf("Write failed with leftover staging file: %v", err)
	}
	if err := Load(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "next" || got.Count != 8 {
		t.Errorf("got %+v, want the new write", got)
	}
	if _, err := os.Stat(path + TmpSuffix); !os.IsNotExist(err) {
		t.Error("staging file survived a successful write")
	}
}

func TestWriteLeavesCommittedDocOnMarshalFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	if err := Write(path, testDoc{Name: "committed", Count: 1}); err != nil {
		t.Fatal(err)
	}

	// Channels are not JSON-serializable.
	err := Write(path, make(chan int))
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}

	var got testDoc
	if err := Load(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "committed" {
		t.Errorf("committed document was disturbed: %+v", got)
	}
}
