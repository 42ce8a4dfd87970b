package executor

import (
	"strings"
	"testing"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

func TestSessionIDDeterministic(t *testing.T) {
	a := SessionID("stream-1")
	b := SessionID("stream-1")
	if a != b {
		t.Errorf("SessionID not deterministic: %s vs %s", a, b)
	}
	if a == SessionID("stream-2") {
		t.Error("different streams produced the same session ID")
	}
}

func TestClaudeBuildArgs(t *testing.T) {
	c := NewClaudeExecutor()

	args := c.buildArgs(Request{
		Prompt:    "implement the parser",
		Tier:      domain.TierPlanning,
		SessionID: "abc-123",
	})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--print", "--output-format stream-json", "--model opus",
		"--session-id abc-123", "-p implement the parser",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestClaudeBuildArgsResume(t *testing.T) {
	c := NewClaudeExecutor()

	args := c.buildArgs(Request{
		Prompt:    "Run the test suite and report",
		Tier:      domain.TierFast,
		SessionID: "abc-123",
		Resume:    true,
	})
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "--resume abc-123") {
		t.Errorf("resume args missing --resume: %s", joined)
	}
	if strings.Contains(joined, "--session-id") {
		t.Errorf("resume args should not carry --session-id: %s", joined)
	}
	// Resuming restores conversation state, not the instructions for this
	// iteration; the prompt must still be passed.
	if !strings.Contains(joined, "-p Run the test suite and report") {
		t.Errorf("resume args must still carry the prompt: %s", joined)
	}
}

func TestCodexBuildArgsResume(t *testing.T) {
	c := NewCodexExecutor()

	args := c.buildArgs(Request{Prompt: "continue the refactor", Tier: domain.TierDevelopment, Resume: true})
	joined := strings.Join(args, " ")

	if !strings.HasPrefix(joined, "exec resume --last") {
		t.Errorf("resume args must start with the resume subcommand: %s", joined)
	}
	if !strings.Contains(joined, "--full-auto") || !strings.Contains(joined, "-m gpt-5-codex") {
		t.Errorf("resume args missing flags: %s", joined)
	}
	if args[len(args)-1] != "continue the refactor" {
		t.Errorf("prompt must be the final argument: %s", joined)
	}
}

func TestParseClaudeLineAssistantText(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"},{"type":"tool_use","name":"Bash"}]}}`

	events := parseClaudeLine(line)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != EventText || events[0].Text != "working on it" {
		t.Errorf("first event = %+v, want text chunk", events[0])
	}
	if events[1].Kind != EventToolInvocation || events[1].Tool != "Bash" {
		t.Errorf("second event = %+v, want tool invocation", events[1])
	}
}

func TestParseClaudeLineResult(t *testing.T) {
	line := `{"type":"result","subtype":"success","result":"All done"}`

	events := parseClaudeLine(line)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	sr := events[1].Result
	if sr == nil || !sr.Success {
		t.Errorf("session result = %+v, want success", sr)
	}
}

func TestParseClaudeLineError(t *testing.T) {
	events := parseClaudeLine(`{"type":"error","error":"usage limit reached"}`)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	sr := events[0].Result
	if sr == nil || sr.Success || sr.Err != "usage limit reached" {
		t.Errorf("session result = %+v, want failure with message", sr)
	}
}

func TestParseClaudeLinePlainText(t *testing.T) {
	events := parseClaudeLine("not json at all")
	if len(events) != 1 || events[0].Kind != EventText {
		t.Fatalf("plain line events = %+v, want one text event", events)
	}
}

func TestResultTranscript(t *testing.T) {
	r := &Result{Events: []Event{
		{Kind: EventText, Text: "line one"},
		{Kind: EventToolInvocation, Tool: "Edit"},
		{Kind: EventSessionResult, Result: &SessionResult{Success: false, Err: "rate limit"}},
	}}

	transcript := r.Transcript()
	if !strings.Contains(transcript, "line one") || !strings.Contains(transcript, "rate limit") {
		t.Errorf("Transcript() = %q", transcript)
	}
}

func TestSyntheticResult(t *testing.T) {
	r := &Result{ExitCode: 1, Events: []Event{{Kind: EventText, Text: "boom"}}}
	appendSyntheticResult(r)

	sr := r.SessionResult()
	if sr == nil || sr.Success {
		t.Errorf("synthetic result = %+v, want failure", sr)
	}

	// Does not double-append.
	appendSyntheticResult(r)
	count := 0
	for _, ev := range r.Events {
		if ev.Kind == EventSessionResult {
			count++
		}
	}
	if count != 1 {
		t.Errorf("session result events = %d, want 1", count)
	}
}

func TestForProvider(t *testing.T) {
	if ForProvider("codex").Name() != "codex" {
		t.Error("ForProvider(codex) wrong executor")
	}
	if ForProvider("gemini").Name() != "gemini" {
		t.Error("ForProvider(gemini) wrong executor")
	}
	if ForProvider("").Name() != "claude-code" {
		t.Error("ForProvider default should be claude-code")
	}
}
