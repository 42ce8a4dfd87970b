package executor

import (
	"context"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// GeminiExecutor invokes the Gemini CLI. Like Codex it prints plain text;
// a session result is synthesized from the exit code.
type GeminiExecutor struct {
	Binary string
	Models map[domain.Tier]string
}

// NewGeminiExecutor returns an executor with the default tier-to-model map.
func NewGeminiExecutor() *GeminiExecutor {
	return &GeminiExecutor{
		Binary: "gemini",
		Models: map[domain.Tier]string{
			domain.TierPlanning:    "gemini-2.5-pro",
			domain.TierDevelopment: "gemini-2.5-pro",
			domain.TierFast:        "gemini-2.5-flash",
		},
	}
}

func (g *GeminiExecutor) Name() string { return "gemini" }

func (g *GeminiExecutor) Capabilities() Capabilities {
	return Capabilities{
		RateLimitPattern: `(?i)quota exceeded|resource_exhausted`,
		SupportsParallel: false,
		TierParams:       g.Models,
	}
}

func (g *GeminiExecutor) buildArgs(req Request) []string {
	args := []string{"--yolo"}
	if model := g.Models[req.Tier]; model != "" {
		args = append(args, "-m", model)
	}
	args = append(args, "-p", req.Prompt)
	return args
}

// Invoke runs the Gemini CLI.
func (g *GeminiExecutor) Invoke(ctx context.Context, req Request) (*Result, error) {
	binary := g.Binary
	if binary == "" {
		binary = "gemini"
	}
	result, err := runCLI(ctx, binary, g.buildArgs(req), req, parsePlainLine)
	if err != nil {
		return nil, err
	}
	appendSyntheticResult(result)
	return result, nil
}

// ForProvider returns the executor for a configured provider name.
func ForProvider(name string) Executor {
	switch name {
	case "codex":
		return NewCodexExecutor()
	case "gemini":
		return NewGeminiExecutor()
	default:
		return NewClaudeExecutor()
	}
}
