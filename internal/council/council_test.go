package council

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// scriptedEvaluator returns a fixed verdict per member ID. Unknown members
// approve with no issues.
type scriptedEvaluator struct {
	verdicts map[string]domain.Verdict
	issues   map[string][]domain.Issue
	err      error
}

func (s scriptedEvaluator) Evaluate(_ context.Context, member Member, _ Evidence, _ []domain.CouncilVote) (domain.CouncilVote, error) {
	if s.err != nil {
		return domain.CouncilVote{}, s.err
	}
	vote := domain.CouncilVote{MemberID: member.ID, Role: member.Role, Verdict: domain.VerdictApprove}
	if v, ok := s.verdicts[member.ID]; ok {
		vote.Verdict = v
	}
	vote.Issues = s.issues[member.ID]
	return vote, nil
}

func memberID(i int) string {
	return Members(3)[i].ID
}

func TestThreshold(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 4},
		{6, 4},
	}
	for _, tc := range cases {
		if got := Threshold(tc.n); got != tc.want {
			t.Errorf("Threshold(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestTwoOfThreeApprovalsComplete(t *testing.T) {
	eval := scriptedEvaluator{
		verdicts: map[string]domain.Verdict{memberID(2): domain.VerdictReject},
		issues: map[string][]domain.Issue{
			memberID(2): {{Severity: domain.SeverityHigh, Description: "integration tests missing"}},
		},
	}
	c := New(Config{Size: 3}, eval)

	round, err := c.RunRound(context.Background(), 12, Evidence{})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if round.Verdict != domain.RoundComplete {
		t.Errorf("verdict = %s, want COMPLETE", round.Verdict)
	}
	if round.ApproveCount != 2 || round.RejectCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", round.ApproveCount, round.RejectCount)
	}
}

func TestOneOfThreeApprovalsContinues(t *testing.T) {
	issue := []domain.Issue{{Severity: domain.SeverityCritical, Description: "tests fail"}}
	eval := scriptedEvaluator{
		verdicts: map[string]domain.Verdict{
			memberID(1): domain.VerdictReject,
			memberID(2): domain.VerdictReject,
		},
		issues: map[string][]domain.Issue{memberID(1): issue, memberID(2): issue},
	}
	c := New(Config{Size: 3}, eval)

	round, err := c.RunRound(context.Background(), 12, Evidence{})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if round.Verdict != domain.RoundContinue {
		t.Errorf("verdict = %s, want CONTINUE", round.Verdict)
	}
	if round.AntiSycophancyOverride != nil {
		t.Error("adversarial re-check ran on a non-unanimous round")
	}
}

func TestAntiSycophancyFlipsUnanimousApproval(t *testing.T) {
	eval := scriptedEvaluator{
		verdicts: map[string]domain.Verdict{
			"anti-sycophancy-advocate": domain.VerdictReject,
		},
		issues: map[string][]domain.Issue{
			"anti-sycophancy-advocate": {{Severity: domain.SeverityHigh, Description: "no evidence tests were run"}},
		},
	}
	c := New(Config{Size: 3}, eval)

	round, err := c.RunRound(context.Background(), 20, Evidence{})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if round.AntiSycophancyOverride == nil {
		t.Fatal("unanimous approval did not trigger the adversarial re-check")
	}
	if round.ApproveCount != 2 {
		t.Errorf("approve count after override = %d, want 2", round.ApproveCount)
	}
	if round.Verdict != domain.RoundContinue {
		t.Errorf("verdict = %s, want CONTINUE after devil's advocate rejection", round.Verdict)
	}
}

func TestAntiSycophancyApproveKeepsComplete(t *testing.T) {
	c := New(Config{Size: 3}, scriptedEvaluator{})

	round, err := c.RunRound(context.Background(), 20, Evidence{})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if round.AntiSycophancyOverride == nil {
		t.Fatal("unanimous approval did not trigger the adversarial re-check")
	}
	if round.Verdict != domain.RoundComplete {
		t.Errorf("verdict = %s, want COMPLETE when re-check approves", round.Verdict)
	}
	if round.ApproveCount != 3 {
		t.Errorf("approve count = %d, want 3", round.ApproveCount)
	}
}

func TestSeverityOverrideRecodesLowIssues(t *testing.T) {
	eval := scriptedEvaluator{
		verdicts: map[string]domain.Verdict{memberID(2): domain.VerdictReject},
		issues: map[string][]domain.Issue{
			memberID(2): {{Severity: domain.SeverityLow, Description: "stray debug log line"}},
		},
	}

	c := New(Config{Size: 3, BlockingSeverity: domain.SeverityCritical}, eval)
	round, err := c.RunRound(context.Background(), 5, Evidence{})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if round.Votes[2].Verdict != domain.VerdictApprove {
		t.Errorf("low-severity reject not recoded under critical threshold: %s", round.Votes[2].Verdict)
	}
	if round.ApproveCount != 3 {
		t.Errorf("approve count = %d, want 3 after recode", round.ApproveCount)
	}

	c = New(Config{Size: 3, BlockingSeverity: domain.SeverityLow}, eval)
	round, err = c.RunRound(context.Background(), 5, Evidence{})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if round.Votes[2].Verdict != domain.VerdictReject {
		t.Errorf("low-severity reject recoded under low threshold: %s", round.Votes[2].Verdict)
	}
	if round.ApproveCount != 2 {
		t.Errorf("approve count = %d, want 2 without recode", round.ApproveCount)
	}
}

func TestIssuelessRejectNeverRecoded(t *testing.T) {
	// A REJECT with no parsed issues carries no severities to weigh, so
	// the error budget must leave it alone at any threshold.
	eval := scriptedEvaluator{
		verdicts: map[string]domain.Verdict{
			memberID(0): domain.VerdictReject,
			memberID(1): domain.VerdictReject,
			memberID(2): domain.VerdictReject,
		},
	}

	for _, sev := range []domain.Severity{domain.SeverityLow, domain.SeverityCritical} {
		c := New(Config{Size: 3, BlockingSeverity: sev}, eval)
		round, err := c.RunRound(context.Background(), 9, Evidence{})
		if err != nil {
			t.Fatalf("RunRound(threshold %s): %v", sev, err)
		}
		if round.Verdict != domain.RoundContinue {
			t.Errorf("threshold %s: verdict = %s, want CONTINUE", sev, round.Verdict)
		}
		if round.ApproveCount != 0 || round.RejectCount != 3 {
			t.Errorf("threshold %s: counts = %d/%d, want 0/3", sev, round.ApproveCount, round.RejectCount)
		}
		for i, vote := range round.Votes {
			if vote.Verdict != domain.VerdictReject {
				t.Errorf("threshold %s: vote %d recoded to %s", sev, i, vote.Verdict)
			}
		}
	}
}

func TestFallbackOnEvaluatorError(t *testing.T) {
	eval := scriptedEvaluator{err: errors.New("evaluator offline")}
	c := New(Config{Size: 3}, eval)

	round, err := c.RunRound(context.Background(), 1, Evidence{PRDPresent: true})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if !round.Fallback {
		t.Error("round not marked as fallback after evaluator errors")
	}
	if len(round.Votes) != 3 {
		t.Fatalf("vote count = %d, want 3", len(round.Votes))
	}
}

func TestNilEvaluatorUsesHeuristic(t *testing.T) {
	c := New(Config{Size: 3}, nil)

	round, err := c.RunRound(context.Background(), 1, Evidence{PRDPresent: true})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if !round.Fallback {
		t.Error("nil evaluator should mark the round as fallback")
	}
}

func TestRoundPersistence(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{Size: 3, RoundsDir: dir}, scriptedEvaluator{})

	round, err := c.RunRound(context.Background(), 7, Evidence{})
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "round-"+round.RoundID+".json"))
	if err != nil {
		t.Fatalf("reading round file: %v", err)
	}
	var stored domain.CouncilRound
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("round file is not valid JSON: %v", err)
	}
	if stored.RoundID != round.RoundID || stored.Iteration != 7 {
		t.Errorf("stored round = %s/%d, want %s/7", stored.RoundID, stored.Iteration, round.RoundID)
	}

	if round.Verdict == domain.RoundComplete {
		if _, err := os.Stat(filepath.Join(dir, CompletionMarker)); err != nil {
			t.Errorf("completion marker missing after COMPLETE verdict: %v", err)
		}
	}
}

func TestContinueWritesNoCompletionMarker(t *testing.T) {
	dir := t.TempDir()
	issue := []domain.Issue{{Severity: domain.SeverityCritical, Description: "build broken"}}
	eval := scriptedEvaluator{
		verdicts: map[string]domain.Verdict{
			memberID(0): domain.VerdictReject,
			memberID(1): domain.VerdictReject,
		},
		issues: map[string][]domain.Issue{memberID(0): issue, memberID(1): issue},
	}
	c := New(Config{Size: 3, RoundsDir: dir}, eval)

	if _, err := c.RunRound(context.Background(), 3, Evidence{}); err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, CompletionMarker)); !os.IsNotExist(err) {
		t.Error("completion marker written on a CONTINUE verdict")
	}
}

func TestMemberRolesCycle(t *testing.T) {
	members := Members(5)
	want := []domain.MemberRole{
		domain.RoleRequirementsVerifier,
		domain.RoleTestAuditor,
		domain.RoleDevilsAdvocate,
		domain.RoleRequirementsVerifier,
		domain.RoleTestAuditor,
	}
	for i, m := range members {
		if m.Role != want[i] {
			t.Errorf("member %d role = %s, want %s", i, m.Role, want[i])
		}
	}
}
