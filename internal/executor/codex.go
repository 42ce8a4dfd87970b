package executor

import (
	"context"
	"strings"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// CodexExecutor invokes the Codex CLI. Codex prints plain text, so every
// output line becomes a text event and success is inferred from the exit
// code via a synthesized session result.
type CodexExecutor struct {
	Binary string
	Models map[domain.Tier]string
}

// NewCodexExecutor returns an executor with the default tier-to-model map.
func NewCodexExecutor() *CodexExecutor {
	return &CodexExecutor{
		Binary: "codex",
		Models: map[domain.Tier]string{
			domain.TierPlanning:    "o3",
			domain.TierDevelopment: "gpt-5-codex",
			domain.TierFast:        "gpt-5-mini",
		},
	}
}

func (c *CodexExecutor) Name() string { return "codex" }

func (c *CodexExecutor) Capabilities() Capabilities {
	return Capabilities{
		RateLimitPattern: `(?i)rate limit|429`,
		SupportsParallel: false,
		TierParams:       c.Models,
	}
}

func (c *CodexExecutor) buildArgs(req Request) []string {
	// "exec resume --last" is a distinct subcommand, so the resume tokens
	// come before any flags.
	args := []string{"exec"}
	if req.Resume {
		args = append(args, "resume", "--last")
	}
	args = append(args, "--full-auto")
	if model := c.Models[req.Tier]; model != "" {
		args = append(args, "-m", model)
	}
	args = append(args, req.Prompt)
	return args
}

// Invoke runs the Codex CLI.
func (c *CodexExecutor) Invoke(ctx context.Context, req Request) (*Result, error) {
	binary := c.Binary
	if binary == "" {
		binary = "codex"
	}
	result, err := runCLI(ctx, binary, c.buildArgs(req), req, parsePlainLine)
	if err != nil {
		return nil, err
	}
	appendSyntheticResult(result)
	return result, nil
}

// parsePlainLine passes non-empty lines through as text events.
func parsePlainLine(line string) []Event {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	return []Event{{Kind: EventText, Text: line}}
}

// appendSyntheticResult adds a terminal session result derived from the
// exit code when the provider emits none itself.
func appendSyntheticResult(result *Result) {
	if result.SessionResult() != nil {
		return
	}
	sr := &SessionResult{Success: result.ExitCode == 0}
	if !sr.Success {
		sr.Err = "executor exited non-zero"
	}
	result.Events = append(result.Events, Event{Kind: EventSessionResult, Result: sr})
}
