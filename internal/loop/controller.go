// Package loop drives the iteration controller: the Reason-Act-Reflect-Verify
// cycle around the external agent executor, with retry/backoff, convergence
// tracking, and council consultation at check points.
package loop

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/checkpoint"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/convergence"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/council"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/executor"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/notify"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/taskstore"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeCompletionPromise Outcome = "completion_promise_fulfilled"
	OutcomeCouncilApproved   Outcome = "council_approved"
	OutcomeMaxIterations     Outcome = "max_iterations_reached"
	OutcomeMaxRetries        Outcome = "max_retries_exceeded"
	OutcomeInterrupted       Outcome = "interrupted"

	statusRunning = "running"
)

// Failed reports whether the outcome is a failure for exit-status purposes.
// Interrupted runs are resumable, not failed.
func (o Outcome) Failed() bool {
	return o == OutcomeMaxRetries
}

// BackoffPolicy computes the wait before the next retry.
type BackoffPolicy interface {
	Wait(retry int, logText string) time.Duration
	DetectRateLimit(logText string) time.Duration
}

// CouncilRunner runs one completion vote. Satisfied by *council.Council.
type CouncilRunner interface {
	RunRound(ctx context.Context, iteration int, ev council.Evidence) (*domain.CouncilRound, error)
}

// Config carries the per-run controller settings. It is built once per run
// and passed explicitly; the controller keeps no ambient globals.
type Config struct {
	RunID    string
	StreamID string
	WorkDir  string

	MaxIterations int
	MaxRetries    int

	// CouncilInterval is the fixed check interval in iterations;
	// MinIterationsBeforeCouncil gates the first check.
	CouncilInterval            int
	MinIterationsBeforeCouncil int

	// Perpetual disables all completion detection; the loop runs until a
	// budget is exhausted or a stop is requested.
	Perpetual bool
	// CompletionPromise stops the run when it appears verbatim in a
	// successful iteration's transcript.
	CompletionPromise string

	PRDPath        string
	TestResultPath string
	LogPath        string

	// TaskRetryCeiling dead-letters the active task after this many failures.
	TaskRetryCeiling int
}

// Deps are the controller's collaborators.
type Deps struct {
	Executor    executor.Executor
	Checkpoints *checkpoint.Store
	Tasks       *taskstore.Store
	Detector    *convergence.Detector
	Repo        council.VCS
	Council     CouncilRunner
	Backoff     BackoffPolicy
	History     *history.Store // optional
	Signals     *Signals
	Notifier    notify.Notifier // optional
	Fingerprint func() (string, error)
}

// Controller runs one work stream sequentially: it never starts a new agent
// invocation before the previous one returns.
type Controller struct {
	cfg  Config
	deps Deps
	logf func(format string, args ...any)

	task *domain.Task
}

// New creates a Controller, applying defaults for unset limits.
func New(cfg Config, deps Deps) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.CouncilInterval <= 0 {
		cfg.CouncilInterval = 5
	}
	if cfg.MinIterationsBeforeCouncil <= 0 {
		cfg.MinIterationsBeforeCouncil = 3
	}
	if cfg.TaskRetryCeiling <= 0 {
		cfg.TaskRetryCeiling = 3
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	return &Controller{cfg: cfg, deps: deps, logf: log.Printf}
}

// Run executes the loop until a terminal state. The returned outcome is
// always persisted to the checkpoint before Run returns, so an interrupted
// or failed run resumes exactly where it stopped.
func (c *Controller) Run(ctx context.Context) (Outcome, error) {
	state := c.deps.Checkpoints.Load()
	iteration := state.IterationCount
	retry := state.RetryCount
	runStart := time.Now()

	if c.deps.Tasks != nil {
		task, err := c.deps.Tasks.Claim()
		if err != nil {
			return "", fmt.Errorf("claiming task: %w", err)
		}
		c.task = task
	}

	for retry < c.cfg.MaxRetries && iteration < c.cfg.MaxIterations {
		if c.deps.Signals.StopRequested() {
			return c.finish(OutcomeInterrupted, retry, iteration, runStart)
		}
		if c.deps.Signals.PauseRequested() {
			c.logf("loop paused, waiting for PAUSE flag to clear")
			if !c.deps.Signals.WaitWhilePaused(ctx) {
				return c.finish(OutcomeInterrupted, retry, iteration, runStart)
			}
		}

		iteration++
		if err := c.deps.Checkpoints.Save(checkpoint.State{
			RetryCount:     retry,
			IterationCount: iteration,
			Status:         statusRunning,
			LastExitCode:   state.LastExitCode,
		}); err != nil {
			return "", fmt.Errorf("saving checkpoint: %w", err)
		}

		record := domain.NewIterationRecord(iteration)
		c.logf("iteration %d: phase=%s tier=%s", iteration, record.Phase, record.Tier)

		res, err := c.deps.Executor.Invoke(ctx, executor.Request{
			Prompt:    c.buildPrompt(record.Phase),
			Tier:      record.Tier,
			WorkDir:   c.cfg.WorkDir,
			SessionID: executor.SessionID(c.cfg.StreamID),
			Resume:    iteration > 1,
			LogPath:   c.cfg.LogPath,
		})
		if err != nil {
			if ctx.Err() != nil {
				return c.finish(OutcomeInterrupted, retry, iteration, runStart)
			}
			// Spawn failure: treat like a non-zero exit and retry.
			c.logf("executor invocation failed: %v", err)
			res = &executor.Result{ExitCode: -1}
		}
		record.Seal(res.ExitCode)
		state.LastExitCode = res.ExitCode

		sample := c.observe(iteration, res)
		c.recordIteration(record, sample, retry)

		if res.ExitCode != 0 {
			transcript := res.Transcript()
			wait := c.deps.Backoff.Wait(retry, transcript)
			if rl := c.deps.Backoff.DetectRateLimit(transcript); rl > 0 {
				c.logf("%v, retry %d", &RateLimitedError{Iteration: iteration, ResumeAfter: wait}, retry+1)
			} else {
				c.logf("%v, backing off %s before retry %d", &ExecutorFailureError{Iteration: iteration, ExitCode: res.ExitCode}, wait, retry+1)
			}
			if !c.deps.Signals.Wait(ctx, wait) {
				return c.finish(OutcomeInterrupted, retry, iteration, runStart)
			}
			retry++
			continue
		}

		// Success is never itself a stopping condition: only an explicit
		// completion promise or a council COMPLETE stops the loop.
		retry = 0
		if c.cfg.Perpetual {
			continue
		}
		if c.cfg.CompletionPromise != "" && strings.Contains(res.Transcript(), c.cfg.CompletionPromise) {
			return c.finish(OutcomeCompletionPromise, retry, iteration, runStart)
		}

		if c.councilDue(iteration) {
			outcome, done := c.consultCouncil(ctx, iteration, sample)
			if done {
				return c.finish(outcome, retry, iteration, runStart)
			}
		}
		if c.deps.Detector.ForceStop() {
			c.logf("safety valve: %v, forcing stop", &StagnationError{ConsecutiveNoChange: c.deps.Detector.ConsecutiveNoChange()})
			return c.finish(OutcomeMaxIterations, retry, iteration, runStart)
		}
	}

	if retry >= c.cfg.MaxRetries {
		return c.finish(OutcomeMaxRetries, retry, iteration, runStart)
	}
	return c.finish(OutcomeMaxIterations, retry, iteration, runStart)
}

// councilDue reports whether this iteration is a council check point: the
// fixed interval or a tripped circuit breaker, never before the configured
// minimum iteration count.
func (c *Controller) councilDue(iteration int) bool {
	if c.deps.Council == nil || iteration < c.cfg.MinIterationsBeforeCouncil {
		return false
	}
	return iteration%c.cfg.CouncilInterval == 0 || c.deps.Detector.Triggered()
}

// consultCouncil runs one round. done is true only for COMPLETE; every
// failure mode continues the loop.
func (c *Controller) consultCouncil(ctx context.Context, iteration int, sample convergence.Sample) (Outcome, bool) {
	var queues council.QueueCounter
	if c.deps.Tasks != nil {
		queues = c.deps.Tasks
	}
	ev := council.AssembleEvidence(c.deps.Repo, queues, c.cfg.PRDPath, c.cfg.TestResultPath, iteration, sample.DoneSignalCount)
	round, err := c.deps.Council.RunRound(ctx, iteration, ev)
	if err != nil {
		c.logf("council round failed: %v", err)
		return "", false
	}
	c.logf("council verdict: %s (%d/%d approvals, threshold %d)",
		round.Verdict, round.ApproveCount, len(round.Votes), round.Threshold)
	if c.deps.History != nil {
		if err := c.deps.History.SaveRound(c.cfg.RunID, round); err != nil {
			c.logf("recording council round %s: %v", round.RoundID, err)
		}
	}
	if round.Verdict == domain.RoundComplete {
		return OutcomeCouncilApproved, true
	}
	return "", false
}

// observe feeds one iteration into the convergence detector.
func (c *Controller) observe(iteration int, res *executor.Result) convergence.Sample {
	var fingerprint string
	var filesChanged int
	if c.deps.Fingerprint != nil {
		if fp, err := c.deps.Fingerprint(); err == nil {
			fingerprint = fp
		}
	}
	if c.deps.Repo != nil {
		if n, err := c.deps.Repo.ChangedFileCount(); err == nil {
			filesChanged = n
		}
	}
	return c.deps.Detector.Observe(iteration, fingerprint, filesChanged, res.Events)
}

func (c *Controller) recordIteration(record *domain.IterationRecord, sample convergence.Sample, retry int) {
	if c.deps.History == nil {
		return
	}
	err := c.deps.History.SaveIteration(history.IterationRow{
		RunID:           c.cfg.RunID,
		Record:          *record,
		DiffFingerprint: sample.DiffFingerprint,
		FilesChanged:    sample.FilesChanged,
		RetryCount:      retry,
	})
	if err != nil {
		c.logf("recording iteration %d: %v", record.Iteration, err)
	}
}

// finish persists the terminal state everywhere it is visible: checkpoint,
// history, task queue, and notifications.
func (c *Controller) finish(outcome Outcome, retry, iteration int, runStart time.Time) (Outcome, error) {
	if err := c.deps.Checkpoints.Save(checkpoint.State{
		RetryCount:     retry,
		IterationCount: iteration,
		Status:         string(outcome),
	}); err != nil {
		return outcome, fmt.Errorf("saving terminal checkpoint: %w", err)
	}

	if c.deps.History != nil {
		err := c.deps.History.SaveOutcome(history.RunOutcome{
			RunID:      c.cfg.RunID,
			Outcome:    string(outcome),
			Iterations: iteration,
			StartedAt:  runStart,
			FinishedAt: time.Now(),
		})
		if err != nil {
			c.logf("recording run outcome: %v", err)
		}
	}

	c.settleTask(outcome)
	c.notifyOutcome(outcome, iteration, time.Since(runStart))

	c.logf("run %s finished after %d iterations: %s", c.cfg.RunID, iteration, outcome)
	if outcome == OutcomeMaxRetries {
		return outcome, ErrMaxRetriesExceeded
	}
	return outcome, nil
}

// settleTask moves the active task to its terminal queue. Interrupted runs
// leave the task in_progress for resume.
func (c *Controller) settleTask(outcome Outcome) {
	if c.task == nil || c.deps.Tasks == nil {
		return
	}
	var err error
	switch outcome {
	case OutcomeCompletionPromise, OutcomeCouncilApproved:
		err = c.deps.Tasks.Transition(c.task.ID, domain.StatusCompleted, "")
	case OutcomeMaxRetries, OutcomeMaxIterations:
		err = c.deps.Tasks.Fail(c.task.ID, string(outcome), c.cfg.TaskRetryCeiling)
	case OutcomeInterrupted:
		return
	}
	if err != nil {
		c.logf("settling task %s: %v", c.task.ID, err)
	}
}

func (c *Controller) notifyOutcome(outcome Outcome, iteration int, elapsed time.Duration) {
	level := notify.LevelInfo
	switch outcome {
	case OutcomeCompletionPromise, OutcomeCouncilApproved:
		level = notify.LevelSuccess
	case OutcomeMaxRetries:
		level = notify.LevelError
	case OutcomeMaxIterations:
		level = notify.LevelWarning
	}
	err := c.deps.Notifier.Announce(notify.RunEvent{
		RunID:      c.cfg.RunID,
		Outcome:    string(outcome),
		Iterations: iteration,
		Elapsed:    elapsed,
		Level:      level,
	})
	if err != nil {
		c.logf("announcing outcome: %v", err)
	}
}

// phaseInstructions steer the agent within the current RARV phase.
var phaseInstructions = map[domain.Phase]string{
	domain.PhaseReason:  "Review the repository state and the PRD, then plan the single next concrete step. Do not write code in this pass.",
	domain.PhaseAct:     "Implement the next planned step with focused changes. Keep the build working.",
	domain.PhaseReflect: "Review what has been built so far, fix weaknesses, and strengthen tests where coverage is thin.",
	domain.PhaseVerify:  "Run the test suite, fix quick failures, and record the results.",
}

func (c *Controller) buildPrompt(phase domain.Phase) string {
	var b strings.Builder
	b.WriteString(phaseInstructions[phase])
	if c.task != nil {
		fmt.Fprintf(&b, "\n\nCurrent task: %s", c.task.Title)
		if c.task.Description != "" {
			fmt.Fprintf(&b, "\n%s", c.task.Description)
		}
	}
	if c.cfg.PRDPath != "" {
		fmt.Fprintf(&b, "\n\nThe product requirements are in %s.", c.cfg.PRDPath)
	}
	if c.cfg.TestResultPath != "" && phase == domain.PhaseVerify {
		fmt.Fprintf(&b, "\nWrite the test output to %s.", c.cfg.TestResultPath)
	}
	return b.String()
}
