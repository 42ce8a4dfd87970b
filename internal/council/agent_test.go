package council

import (
	"context"
	"strings"
	"testing"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/executor"
)

type replyExecutor struct {
	reply    string
	exitCode int
	prompts  []string
}

func (r *replyExecutor) Name() string { return "reply" }

func (r *replyExecutor) Capabilities() executor.Capabilities {
	return executor.Capabilities{}
}

func (r *replyExecutor) Invoke(_ context.Context, req executor.Request) (*executor.Result, error) {
	r.prompts = append(r.prompts, req.Prompt)
	return &executor.Result{
		Events:   []executor.Event{{Kind: executor.EventText, Text: r.reply}},
		ExitCode: r.exitCode,
	}, nil
}

func TestAgentEvaluatorParsesApprove(t *testing.T) {
	exec := &replyExecutor{reply: "VERDICT: APPROVE\nREASONING: all requirements covered"}
	eval := &AgentEvaluator{Executor: exec}
	member := Members(3)[0]

	vote, err := eval.Evaluate(context.Background(), member, Evidence{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if vote.Verdict != domain.VerdictApprove {
		t.Errorf("verdict = %s, want APPROVE", vote.Verdict)
	}
	if vote.MemberID != member.ID || vote.Role != member.Role {
		t.Errorf("vote identity = %s/%s, want %s/%s", vote.MemberID, vote.Role, member.ID, member.Role)
	}
	if vote.Reasoning != "all requirements covered" {
		t.Errorf("reasoning = %q", vote.Reasoning)
	}
}

func TestAgentEvaluatorParsesIssues(t *testing.T) {
	exec := &replyExecutor{reply: strings.Join([]string{
		"VERDICT: REJECT",
		"ISSUE(critical): tests fail on the retry path",
		"ISSUE(low): stray debug output",
		"ISSUE(bogus): not a severity",
		"REASONING: failing tests block completion",
	}, "\n")}
	eval := &AgentEvaluator{Executor: exec}

	vote, err := eval.Evaluate(context.Background(), Members(3)[1], Evidence{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if vote.Verdict != domain.VerdictReject {
		t.Errorf("verdict = %s, want REJECT", vote.Verdict)
	}
	if len(vote.Issues) != 2 {
		t.Fatalf("issues = %d, want 2 (malformed severity skipped)", len(vote.Issues))
	}
	if vote.Issues[0].Severity != domain.SeverityCritical {
		t.Errorf("first issue severity = %s", vote.Issues[0].Severity)
	}
}

func TestAgentEvaluatorMissingVerdict(t *testing.T) {
	exec := &replyExecutor{reply: "I think the work looks done."}
	eval := &AgentEvaluator{Executor: exec}

	if _, err := eval.Evaluate(context.Background(), Members(3)[0], Evidence{}, nil); err == nil {
		t.Fatal("expected error for reply without a VERDICT line")
	}
}

func TestAgentEvaluatorNonZeroExit(t *testing.T) {
	exec := &replyExecutor{reply: "VERDICT: APPROVE", exitCode: 1}
	eval := &AgentEvaluator{Executor: exec}

	if _, err := eval.Evaluate(context.Background(), Members(3)[0], Evidence{}, nil); err == nil {
		t.Fatal("expected error for non-zero evaluator exit")
	}
}

func TestAgentEvaluatorPriorVotesInPrompt(t *testing.T) {
	exec := &replyExecutor{reply: "VERDICT: REJECT"}
	eval := &AgentEvaluator{Executor: exec}

	prior := []domain.CouncilVote{
		{MemberID: "member-1-requirements_verifier", Verdict: domain.VerdictApprove},
	}
	if _, err := eval.Evaluate(context.Background(), Members(3)[2], Evidence{}, prior); err != nil {
		t.Fatal(err)
	}
	if len(exec.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(exec.prompts))
	}
	if !strings.Contains(exec.prompts[0], "member-1-requirements_verifier: APPROVE") {
		t.Errorf("re-check prompt missing prior verdicts:\n%s", exec.prompts[0])
	}
}

func TestAgentEvaluatorNilExecutor(t *testing.T) {
	eval := &AgentEvaluator{}
	if _, err := eval.Evaluate(context.Background(), Members(3)[0], Evidence{}, nil); err == nil {
		t.Fatal("expected error with no executor")
	}
}
