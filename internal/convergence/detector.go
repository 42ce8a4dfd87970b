// Package convergence watches iteration-to-iteration repository change and
// transcript completion signals to detect a stuck or finished loop. It is a
// state machine over iterations, not over tasks.
package convergence

import (
	"regexp"
	"sync"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/executor"
)

// doneSignalRe matches completion-like phrases in transcript text events.
var doneSignalRe = regexp.MustCompile(`(?i)(all tests pass(ing)?|implementation (is )?complete|task (is )?complete|everything (is )?done|nothing (left|more) to do|work is finished)`)

// Sample records the convergence state observed at one iteration.
type Sample struct {
	Iteration           int    `json:"iteration"`
	DiffFingerprint     string `json:"diff_fingerprint"`
	FilesChanged        int    `json:"files_changed"`
	ConsecutiveNoChange int    `json:"consecutive_no_change"`
	DoneSignalCount     int    `json:"done_signal_count"`
}

// Detector accumulates samples across iterations and decides when the loop
// has stagnated or is claiming completion.
type Detector struct {
	stagnationLimit int
	maxWindow       int

	mu              sync.Mutex
	window          []Sample
	lastFingerprint string
	consecNoChange  int
	doneSignals     int
}

// New creates a Detector. stagnationLimit is the number of consecutive
// unchanged iterations that counts as stagnation; maxWindow bounds the
// retained sample history.
func New(stagnationLimit, maxWindow int) *Detector {
	if stagnationLimit <= 0 {
		stagnationLimit = 3
	}
	if maxWindow <= 0 {
		maxWindow = 50
	}
	return &Detector{stagnationLimit: stagnationLimit, maxWindow: maxWindow}
}

// Observe records one iteration's fingerprint and transcript events and
// returns the resulting sample. An unchanged fingerprint increments the
// no-change streak; any change resets it. A completion-like phrase in the
// transcript increments the done-signal streak; its absence resets it.
func (d *Detector) Observe(iteration int, fingerprint string, filesChanged int, events []executor.Event) Sample {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastFingerprint != "" && fingerprint == d.lastFingerprint {
		d.consecNoChange++
	} else {
		d.consecNoChange = 0
	}
	d.lastFingerprint = fingerprint

	if hasDoneSignal(events) {
		d.doneSignals++
	} else {
		d.doneSignals = 0
	}

	sample := Sample{
		Iteration:           iteration,
		DiffFingerprint:     fingerprint,
		FilesChanged:        filesChanged,
		ConsecutiveNoChange: d.consecNoChange,
		DoneSignalCount:     d.doneSignals,
	}

	d.window = append(d.window, sample)
	if len(d.window) > d.maxWindow {
		d.window = d.window[len(d.window)-d.maxWindow:]
	}
	return sample
}

// hasDoneSignal matches completion phrases against structured text events
// only, keeping the heuristic surface away from raw tool output.
func hasDoneSignal(events []executor.Event) bool {
	for _, ev := range events {
		switch ev.Kind {
		case executor.EventText:
			if doneSignalRe.MatchString(ev.Text) {
				return true
			}
		case executor.EventSessionResult:
			// A successful session result is not itself a done signal;
			// success never stops the loop on its own.
		}
	}
	return false
}

// Triggered reports whether the circuit breaker should fire: either the
// stagnation streak reached its limit, or the agent has claimed completion
// on two consecutive iterations.
func (d *Detector) Triggered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecNoChange >= d.stagnationLimit || d.doneSignals >= 2
}

// ForceStop reports whether the safety valve has tripped: the loop stayed
// unchanged for twice the stagnation limit. At that point the controller
// must stop regardless of council verdicts to avoid unbounded burn.
func (d *Detector) ForceStop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecNoChange >= 2*d.stagnationLimit
}

// ConsecutiveNoChange returns the current stagnation streak.
func (d *Detector) ConsecutiveNoChange() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.consecNoChange
}

// DoneSignalCount returns the current done-signal streak.
func (d *Detector) DoneSignalCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doneSignals
}

// Samples returns a copy of the retained sample window.
func (d *Detector) Samples() []Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Sample, len(d.window))
	copy(out, d.window)
	return out
}
