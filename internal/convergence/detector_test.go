package convergence

import (
	"fmt"
	"testing"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/executor"
)

func textEvents(lines ...string) []executor.Event {
	var events []executor.Event
	for _, line := range lines {
		events = append(events, executor.Event{Kind: executor.EventText, Text: line})
	}
	return events
}

func TestNoChangeStreak(t *testing.T) {
	d := New(3, 10)

	d.Observe(1, "fp-a", 2, nil)
	if got := d.ConsecutiveNoChange(); got != 0 {
		t.Errorf("streak after first sample = %d, want 0", got)
	}

	d.Observe(2, "fp-a", 0, nil)
	d.Observe(3, "fp-a", 0, nil)
	if got := d.ConsecutiveNoChange(); got != 2 {
		t.Errorf("streak after two unchanged = %d, want 2", got)
	}

	// A changed fingerprint resets the streak to zero.
	d.Observe(4, "fp-b", 1, nil)
	if got := d.ConsecutiveNoChange(); got != 0 {
		t.Errorf("streak after change = %d, want 0", got)
	}
}

func TestTriggeredOnStagnation(t *testing.T) {
	d := New(2, 10)

	d.Observe(1, "fp", 0, nil)
	d.Observe(2, "fp", 0, nil)
	if d.Triggered() {
		t.Error("triggered at streak 1, want not yet")
	}
	d.Observe(3, "fp", 0, nil)
	if !d.Triggered() {
		t.Error("not triggered at streak 2 with limit 2")
	}
}

func TestTriggeredOnDoneSignals(t *testing.T) {
	d := New(5, 10)

	d.Observe(1, "a", 1, textEvents("All tests pass, moving on"))
	if d.Triggered() {
		t.Error("one done signal should not trigger")
	}
	d.Observe(2, "b", 1, textEvents("Implementation complete."))
	if !d.Triggered() {
		t.Error("two consecutive done signals should trigger")
	}
}

func TestDoneSignalStreakResets(t *testing.T) {
	d := New(5, 10)

	d.Observe(1, "a", 1, textEvents("all tests passing"))
	d.Observe(2, "b", 1, textEvents("still refactoring the store"))
	if got := d.DoneSignalCount(); got != 0 {
		t.Errorf("done signal streak = %d after non-signal iteration, want 0", got)
	}
}

func TestForceStopSafetyValve(t *testing.T) {
	d := New(2, 20)

	d.Observe(1, "fp", 0, nil)
	for i := 2; i <= 4; i++ {
		d.Observe(i, "fp", 0, nil)
	}
	if d.ForceStop() {
		t.Error("force stop at streak 3, want only at 4")
	}
	d.Observe(5, "fp", 0, nil)
	if !d.ForceStop() {
		t.Error("force stop not reached at 2*stagnation_limit")
	}
}

func TestWindowBounded(t *testing.T) {
	d := New(3, 5)

	for i := 1; i <= 12; i++ {
		d.Observe(i, fmt.Sprintf("fp-%d", i), 1, nil)
	}

	samples := d.Samples()
	if len(samples) != 5 {
		t.Fatalf("window size = %d, want 5", len(samples))
	}
	if samples[0].Iteration != 8 {
		t.Errorf("oldest retained iteration = %d, want 8", samples[0].Iteration)
	}
}

func TestSuccessResultIsNotDoneSignal(t *testing.T) {
	d := New(3, 10)

	events := []executor.Event{{
		Kind:   executor.EventSessionResult,
		Result: &executor.SessionResult{Success: true},
	}}
	d.Observe(1, "a", 1, events)
	if got := d.DoneSignalCount(); got != 0 {
		t.Errorf("success result counted as done signal: %d", got)
	}
}
