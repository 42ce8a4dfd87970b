package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "checkpoint.json"))

	if err := store.Save(State{RetryCount: 2, IterationCount: 7, Status: "running", LastExitCode: 1}); err != nil {
		t.Fatal(err)
	}

	got := store.Load()
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
	if got.IterationCount != 7 {
		t.Errorf("IterationCount = %d, want 7", got.IterationCount)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.LastRunAt.IsZero() {
		t.Error("LastRunAt not stamped on save")
	}
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "checkpoint.json"))

	got := store.Load()
	if got.RetryCount != 0 || got.IterationCount != 0 {
		t.Errorf("missing checkpoint = %+v, want zero default", got)
	}
}

func TestLoadCorruptReturnsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := New(path).Load()
	if got.RetryCount != 0 {
		t.Errorf("corrupt checkpoint RetryCount = %d, want 0", got.RetryCount)
	}
}

func TestResumeAfterSimulatedCrash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	// First process checkpoints mid-run, then "crashes".
	first := New(path)
	if err := first.Save(State{RetryCount: 1, IterationCount: 4, Status: "running"}); err != nil {
		t.Fatal(err)
	}

	// Second process resumes from the same file.
	second := New(path)
	got := second.Load()
	if got.RetryCount != 1 || got.IterationCount != 4 {
		t.Errorf("resume state = %+v, want retry 1 iteration 4", got)
	}
}
