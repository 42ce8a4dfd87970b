package loop

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// WorktreeManager creates and removes isolated working-tree copies for
// parallel streams. Satisfied by *vcs.Client.
type WorktreeManager interface {
	AddWorktree(path, branch string) error
	RemoveWorktree(path string) error
}

// ControllerFactory builds a Controller scoped to one stream's working
// tree. Each stream gets its own task and checkpoint stores under workDir.
type ControllerFactory func(streamID, workDir string) (*Controller, error)

// StreamResult is the terminal state of one parallel stream.
type StreamResult struct {
	StreamID string
	Outcome  Outcome
	Err      error
}

// ParallelConfig bounds a parallel run.
type ParallelConfig struct {
	Streams       int
	MaxConcurrent int
	WorktreeRoot  string
	// KeepWorktrees leaves stream worktrees in place for inspection.
	KeepWorktrees bool
}

// RunParallel runs Streams independent controllers, each in its own
// worktree, with at most MaxConcurrent agent sessions at once. Callers must
// cap MaxConcurrent to 1 when the executor does not support parallel
// sessions.
func RunParallel(ctx context.Context, cfg ParallelConfig, trees WorktreeManager, factory ControllerFactory) ([]StreamResult, error) {
	if cfg.Streams <= 0 {
		cfg.Streams = 1
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = cfg.Streams
	}

	results := make([]StreamResult, cfg.Streams)
	sem := make(chan struct{}, cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Streams; i++ {
		streamID := fmt.Sprintf("stream-%d", i+1)
		results[i] = StreamResult{StreamID: streamID}

		wg.Add(1)
		go func(i int, streamID string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			workDir := filepath.Join(cfg.WorktreeRoot, streamID)
			if err := trees.AddWorktree(workDir, "loop/"+streamID); err != nil {
				results[i].Err = fmt.Errorf("creating worktree for %s: %w", streamID, err)
				return
			}
			if !cfg.KeepWorktrees {
				defer func() {
					if err := trees.RemoveWorktree(workDir); err != nil && results[i].Err == nil {
						results[i].Err = err
					}
				}()
			}

			controller, err := factory(streamID, workDir)
			if err != nil {
				results[i].Err = err
				return
			}
			results[i].Outcome, results[i].Err = controller.Run(ctx)
		}(i, streamID)
	}

	wg.Wait()
	return results, nil
}
