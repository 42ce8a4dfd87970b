// Package notify announces terminal run states over side channels so an
// unattended loop never finishes silently.
package notify

import (
	"errors"
	"fmt"
	"time"
)

// Level classifies how urgently an announcement should be surfaced.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

// RunEvent describes a run that reached a terminal state.
type RunEvent struct {
	RunID      string
	Outcome    string
	Iterations int
	Elapsed    time.Duration
	Level      Level
}

// Title is the short headline shown by every channel.
func (e RunEvent) Title() string {
	return "claude-loop: " + e.Outcome
}

// Body renders the outcome-specific message under the title, including
// what the operator should do next where there is a next step.
func (e RunEvent) Body() string {
	elapsed := e.Elapsed.Round(time.Second)
	switch e.Outcome {
	case "council_approved":
		return fmt.Sprintf("Run %s is done: the completion council approved after %d iterations in %s.",
			e.RunID, e.Iterations, elapsed)
	case "completion_promise_fulfilled":
		return fmt.Sprintf("Run %s is done: the agent emitted the completion promise after %d iterations in %s.",
			e.RunID, e.Iterations, elapsed)
	case "max_retries_exceeded":
		return fmt.Sprintf("Run %s gave up after %d iterations in %s: retry budget exhausted. Check the agent log for the failing invocation.",
			e.RunID, e.Iterations, elapsed)
	case "max_iterations_reached":
		return fmt.Sprintf("Run %s stopped at the iteration budget (%d iterations, %s) without converging.",
			e.RunID, e.Iterations, elapsed)
	case "interrupted":
		return fmt.Sprintf("Run %s was interrupted after %d iterations. Pick it up again with \"claude-loop resume\".",
			e.RunID, e.Iterations)
	default:
		return fmt.Sprintf("Run %s ended after %d iterations in %s.", e.RunID, e.Iterations, elapsed)
	}
}

// Notifier delivers run announcements over one channel.
type Notifier interface {
	Announce(e RunEvent) error
}

// Fanout announces over every configured channel. A failing channel does
// not stop the remaining ones; the failures come back joined.
type Fanout []Notifier

func (f Fanout) Announce(e RunEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Announce(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every announcement.
type Discard struct{}

func (Discard) Announce(RunEvent) error { return nil }
