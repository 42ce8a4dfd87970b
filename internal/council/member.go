package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// Member is one voting seat on the council.
type Member struct {
	ID   string
	Role domain.MemberRole
}

// Members builds the seats for a council of size n, cycling through the
// role rotation.
func Members(n int) []Member {
	members := make([]Member, n)
	for i := 0; i < n; i++ {
		role := domain.RoleForMember(i)
		members[i] = Member{
			ID:   fmt.Sprintf("member-%d-%s", i+1, role),
			Role: role,
		}
	}
	return members
}

// Evaluator produces a vote for one member. prior carries earlier verdicts
// only for the adversarial re-check; regular member evaluation always
// receives a nil prior so no member anchors on another's verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, member Member, ev Evidence, prior []domain.CouncilVote) (domain.CouncilVote, error)
}

// HeuristicEvaluator votes deterministically from the evidence bundle
// alone. It is the fallback when no external evaluator is reachable, so
// the council never blocks indefinitely.
type HeuristicEvaluator struct{}

// Evaluate applies fixed checks: PRD presence, failing-test text,
// TODO/FIXME density, and uncommitted-file count. The devil's advocate
// seat applies the same checks with a stricter uncommitted threshold.
func (HeuristicEvaluator) Evaluate(_ context.Context, member Member, ev Evidence, _ []domain.CouncilVote) (domain.CouncilVote, error) {
	vote := domain.CouncilVote{MemberID: member.ID, Role: member.Role, Verdict: domain.VerdictApprove}

	if !ev.PRDPresent {
		vote.Issues = append(vote.Issues, domain.Issue{
			Severity:    domain.SeverityHigh,
			Description: "no PRD found; cannot verify requirements were met",
		})
	}
	if hasFailingTests(ev.TestResults) {
		vote.Issues = append(vote.Issues, domain.Issue{
			Severity:    domain.SeverityCritical,
			Description: "test results contain failures",
		})
	}
	if ev.TodoCount > 5 {
		vote.Issues = append(vote.Issues, domain.Issue{
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("%d TODO/FIXME markers remain", ev.TodoCount),
		})
	}

	uncommittedLimit := 10
	if member.Role == domain.RoleDevilsAdvocate {
		uncommittedLimit = 0
	}
	if ev.UncommittedFiles > uncommittedLimit {
		vote.Issues = append(vote.Issues, domain.Issue{
			Severity:    domain.SeverityLow,
			Description: fmt.Sprintf("%d uncommitted files in the working tree", ev.UncommittedFiles),
		})
	}

	if pending := ev.QueueCounts[domain.StatusPending]; pending > 0 {
		vote.Issues = append(vote.Issues, domain.Issue{
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("%d tasks still pending", pending),
		})
	}

	for _, issue := range vote.Issues {
		if issue.Severity.AtLeast(domain.SeverityHigh) {
			vote.Verdict = domain.VerdictReject
			break
		}
	}
	vote.Reasoning = heuristicReasoning(vote)
	return vote, nil
}

func heuristicReasoning(vote domain.CouncilVote) string {
	if len(vote.Issues) == 0 {
		return "heuristic checks found no blocking evidence"
	}
	descriptions := make([]string, len(vote.Issues))
	for i, issue := range vote.Issues {
		descriptions[i] = issue.Description
	}
	return "heuristic checks: " + strings.Join(descriptions, "; ")
}

var failingTestMarkers = []string{"FAIL", "--- FAIL", "failed", "FAILED", "error:", "panic:"}

func hasFailingTests(testResults string) bool {
	if strings.TrimSpace(testResults) == "" {
		return false
	}
	for _, marker := range failingTestMarkers {
		if strings.Contains(testResults, marker) {
			return true
		}
	}
	return false
}
