package loop

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/checkpoint"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/convergence"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/executor"
)

type fakeWorktrees struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (f *fakeWorktrees) AddWorktree(path, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, path)
	return nil
}

func (f *fakeWorktrees) RemoveWorktree(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func TestRunParallelStreams(t *testing.T) {
	dir := t.TempDir()
	trees := &fakeWorktrees{}

	factory := func(streamID, workDir string) (*Controller, error) {
		exec := &scriptedExecutor{results: []executor.Result{successResult("done: LOOP_COMPLETE")}}
		signals, err := NewSignals(filepath.Join(dir, streamID, "signals"))
		if err != nil {
			return nil, err
		}
		c := New(Config{
			RunID:                      "parallel-" + streamID,
			StreamID:                   streamID,
			WorkDir:                    workDir,
			MaxIterations:              5,
			MaxRetries:                 3,
			CompletionPromise:          "LOOP_COMPLETE",
			MinIterationsBeforeCouncil: 100,
		}, Deps{
			Executor:    exec,
			Checkpoints: checkpoint.New(filepath.Join(dir, streamID, "checkpoint.json")),
			Detector:    convergence.New(3, 50),
			Repo:        fakeRepo{},
			Backoff:     fakeBackoff{},
			Signals:     signals,
			Fingerprint: changingFingerprints(),
		})
		c.logf = func(string, ...any) {}
		return c, nil
	}

	results, err := RunParallel(context.Background(), ParallelConfig{
		Streams:       3,
		MaxConcurrent: 2,
		WorktreeRoot:  filepath.Join(dir, "worktrees"),
	}, trees, factory)
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("stream results = %d, want 3", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("stream %s failed: %v", r.StreamID, r.Err)
		}
		if r.Outcome != OutcomeCompletionPromise {
			t.Errorf("stream %s outcome = %s, want %s", r.StreamID, r.Outcome, OutcomeCompletionPromise)
		}
	}
	if len(trees.added) != 3 || len(trees.removed) != 3 {
		t.Errorf("worktrees added/removed = %d/%d, want 3/3", len(trees.added), len(trees.removed))
	}
}

func TestRunParallelKeepsWorktrees(t *testing.T) {
	dir := t.TempDir()
	trees := &fakeWorktrees{}

	factory := func(streamID, workDir string) (*Controller, error) {
		exec := &scriptedExecutor{results: []executor.Result{successResult("done: LOOP_COMPLETE")}}
		signals, err := NewSignals(filepath.Join(dir, streamID, "signals"))
		if err != nil {
			return nil, err
		}
		c := New(Config{
			RunID:                      "parallel-" + streamID,
			StreamID:                   streamID,
			MaxIterations:              5,
			MaxRetries:                 3,
			CompletionPromise:          "LOOP_COMPLETE",
			MinIterationsBeforeCouncil: 100,
		}, Deps{
			Executor:    exec,
			Checkpoints: checkpoint.New(filepath.Join(dir, streamID, "checkpoint.json")),
			Detector:    convergence.New(3, 50),
			Repo:        fakeRepo{},
			Backoff:     fakeBackoff{},
			Signals:     signals,
			Fingerprint: changingFingerprints(),
		})
		c.logf = func(string, ...any) {}
		return c, nil
	}

	_, err := RunParallel(context.Background(), ParallelConfig{
		Streams:       2,
		WorktreeRoot:  filepath.Join(dir, "worktrees"),
		KeepWorktrees: true,
	}, trees, factory)
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	if len(trees.removed) != 0 {
		t.Errorf("worktrees removed = %d, want 0 with KeepWorktrees", len(trees.removed))
	}
}
