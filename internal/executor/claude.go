package executor

import (
	"context"
	"encoding/json"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// ClaudeExecutor invokes the Claude Code CLI in non-interactive stream-json
// mode.
type ClaudeExecutor struct {
	// Binary overrides the executable name, mainly for tests.
	Binary string
	// Models maps tiers to model identifiers; empty entries use the CLI
	// default.
	Models map[domain.Tier]string
}

// NewClaudeExecutor returns an executor with the default tier-to-model map.
func NewClaudeExecutor() *ClaudeExecutor {
	return &ClaudeExecutor{
		Binary: "claude",
		Models: map[domain.Tier]string{
			domain.TierPlanning:    "opus",
			domain.TierDevelopment: "sonnet",
			domain.TierFast:        "haiku",
		},
	}
}

func (c *ClaudeExecutor) Name() string { return "claude-code" }

func (c *ClaudeExecutor) Capabilities() Capabilities {
	return Capabilities{
		RateLimitPattern: `(?i)usage limit|resets?\s+\d{1,2}\s*(am|pm)`,
		SupportsParallel: true,
		TierParams:       c.Models,
	}
}

// buildArgs constructs the CLI argument list for a request.
func (c *ClaudeExecutor) buildArgs(req Request) []string {
	args := []string{
		"--print",
		"--verbose",
		"--dangerously-skip-permissions",
		"--output-format", "stream-json",
	}
	if model := c.Models[req.Tier]; model != "" {
		args = append(args, "--model", model)
	}
	if req.Resume && req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	} else if req.SessionID != "" {
		args = append(args, "--session-id", req.SessionID)
	}
	// The prompt travels on every invocation. Resumed sessions restore
	// conversation state, but the phase instructions for this iteration
	// still arrive through -p.
	args = append(args, "-p", req.Prompt)
	return args
}

// Invoke runs the Claude Code CLI and parses its stream-json output.
func (c *ClaudeExecutor) Invoke(ctx context.Context, req Request) (*Result, error) {
	binary := c.Binary
	if binary == "" {
		binary = "claude"
	}
	return runCLI(ctx, binary, c.buildArgs(req), req, parseClaudeLine)
}

// claudeStreamMessage covers the stream-json message shapes we consume.
type claudeStreamMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
	Result  string `json:"result,omitempty"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
			Name string `json:"name,omitempty"`
		} `json:"content"`
	} `json:"message,omitempty"`
}

// parseClaudeLine converts one stream-json line into typed events.
// Unparseable lines are passed through as plain text so nothing in the
// transcript is silently dropped.
func parseClaudeLine(line string) []Event {
	var msg claudeStreamMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		if line == "" {
			return nil
		}
		return []Event{{Kind: EventText, Text: line}}
	}

	switch msg.Type {
	case "assistant":
		var events []Event
		for _, content := range msg.Message.Content {
			switch content.Type {
			case "text":
				if content.Text != "" {
					events = append(events, Event{Kind: EventText, Text: content.Text})
				}
			case "tool_use":
				events = append(events, Event{Kind: EventToolInvocation, Tool: content.Name})
			}
		}
		return events
	case "result":
		result := &SessionResult{Success: !msg.IsError && msg.Subtype == "success"}
		if msg.Error != "" {
			result.Err = msg.Error
		}
		events := []Event{{Kind: EventSessionResult, Result: result}}
		if msg.Result != "" {
			events = append([]Event{{Kind: EventText, Text: msg.Result}}, events...)
		}
		return events
	case "error":
		return []Event{{Kind: EventSessionResult, Result: &SessionResult{Success: false, Err: msg.Error}}}
	default:
		return nil
	}
}
