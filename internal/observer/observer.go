// Package observer produces read-only snapshots of loop state on a fixed
// interval for the TUI and web surfaces. It never mutates the task or
// checkpoint stores.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/checkpoint"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/convergence"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/taskstore"
)

// Snapshot is one derived view of the running loop.
type Snapshot struct {
	At                  time.Time                 `json:"at"`
	Status              string                    `json:"status"`
	Iteration           int                       `json:"iteration"`
	Phase               domain.Phase              `json:"phase"`
	RetryCount          int                       `json:"retry_count"`
	QueueCounts         map[domain.TaskStatus]int `json:"queue_counts"`
	ConsecutiveNoChange int                       `json:"consecutive_no_change"`
	DoneSignals         int                       `json:"done_signals"`
	Resources           Resources                 `json:"resources"`
}

// Sources are the read-only state providers a snapshot is derived from.
// Any of them may be nil; the corresponding fields stay zero.
type Sources struct {
	Checkpoints *checkpoint.Store
	Tasks       *taskstore.Store
	Detector    *convergence.Detector
}

// Observer refreshes snapshots on a fixed wall-clock interval.
type Observer struct {
	sources  Sources
	interval time.Duration

	mu     sync.RWMutex
	latest Snapshot

	// Updates carries each new snapshot; a slow reader only misses
	// intermediate snapshots, never blocks the refresher.
	Updates chan Snapshot
}

// New creates an Observer. interval defaults to 2s.
func New(sources Sources, interval time.Duration) *Observer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Observer{
		sources:  sources,
		interval: interval,
		Updates:  make(chan Snapshot, 1),
	}
}

// Start runs the refresh loop until the context is cancelled.
func (o *Observer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()

		o.refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.refresh()
			}
		}
	}()
}

// Latest returns the most recent snapshot.
func (o *Observer) Latest() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

// Collect builds one snapshot immediately.
func (o *Observer) Collect() Snapshot {
	snap := Snapshot{At: time.Now(), Resources: sampleResources()}

	if o.sources.Checkpoints != nil {
		state := o.sources.Checkpoints.Load()
		snap.Status = state.Status
		snap.Iteration = state.IterationCount
		snap.RetryCount = state.RetryCount
		snap.Phase = domain.PhaseForIteration(state.IterationCount)
	}
	if o.sources.Tasks != nil {
		if counts, err := o.sources.Tasks.Counts(); err == nil {
			snap.QueueCounts = counts
		}
	}
	if o.sources.Detector != nil {
		snap.ConsecutiveNoChange = o.sources.Detector.ConsecutiveNoChange()
		snap.DoneSignals = o.sources.Detector.DoneSignalCount()
	}
	return snap
}

func (o *Observer) refresh() {
	snap := o.Collect()

	o.mu.Lock()
	o.latest = snap
	o.mu.Unlock()

	select {
	case o.Updates <- snap:
	default:
	}
}
