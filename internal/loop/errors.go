package loop

import (
	"errors"
	"fmt"
	"time"
)

// Transient conditions are handled inside the controller and never surface
// as process-level errors; only exhaustion of the retry budget terminates a
// run with a failure status.
var (
	// ErrMaxRetriesExceeded ends a run after the retry budget is spent.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ExecutorFailureError records a non-zero executor exit. It is retried with
// backoff, never propagated.
type ExecutorFailureError struct {
	Iteration int
	ExitCode  int
}

func (e *ExecutorFailureError) Error() string {
	return fmt.Sprintf("executor failed at iteration %d with exit code %d", e.Iteration, e.ExitCode)
}

// RateLimitedError is an executor failure with a provider-computed resume
// time instead of generic backoff.
type RateLimitedError struct {
	Iteration   int
	ResumeAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited at iteration %d, resume after %s", e.Iteration, e.ResumeAfter)
}

// StagnationError records a loop that stopped changing the repository. The
// circuit breaker raises it as a council trigger; the safety valve raises it
// as a forced stop.
type StagnationError struct {
	ConsecutiveNoChange int
}

func (e *StagnationError) Error() string {
	return fmt.Sprintf("no repository change for %d consecutive iterations", e.ConsecutiveNoChange)
}
