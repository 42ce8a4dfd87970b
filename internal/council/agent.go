package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/executor"
)

// AgentEvaluator asks the agent executor for a vote, one fast-tier
// invocation per member. A reply that cannot be parsed is an evaluation
// error; the council then falls back to the heuristic for that member.
type AgentEvaluator struct {
	Executor executor.Executor
	WorkDir  string
}

// Evaluate prompts the executor with the evidence bundle and parses the
// reply into a vote.
func (a *AgentEvaluator) Evaluate(ctx context.Context, member Member, ev Evidence, prior []domain.CouncilVote) (domain.CouncilVote, error) {
	if a.Executor == nil {
		return domain.CouncilVote{}, fmt.Errorf("no executor configured")
	}

	result, err := a.Executor.Invoke(ctx, executor.Request{
		Prompt:  buildVotePrompt(member, ev, prior),
		Tier:    domain.TierFast,
		WorkDir: a.WorkDir,
	})
	if err != nil {
		return domain.CouncilVote{}, fmt.Errorf("invoking evaluator: %w", err)
	}
	if result.ExitCode != 0 {
		return domain.CouncilVote{}, fmt.Errorf("evaluator exited with code %d", result.ExitCode)
	}

	vote, err := parseVote(result.Transcript())
	if err != nil {
		return domain.CouncilVote{}, err
	}
	vote.MemberID = member.ID
	vote.Role = member.Role
	return vote, nil
}

var rolePrompts = map[domain.MemberRole]string{
	domain.RoleRequirementsVerifier: "You verify that the work satisfies the stated requirements. Vote APPROVE only if the PRD requirements appear fully addressed.",
	domain.RoleTestAuditor:          "You audit test evidence. Vote APPROVE only if the test results show a passing suite with meaningful coverage of the changes.",
	domain.RoleDevilsAdvocate:       "You look for any reason the work is not finished. Vote REJECT if you find a single disqualifying issue.",
}

func buildVotePrompt(member Member, ev Evidence, prior []domain.CouncilVote) string {
	var b strings.Builder
	b.WriteString("You are one member of a completion review council deciding whether a development task is finished.\n")
	b.WriteString(rolePrompts[member.Role])
	b.WriteString("\n\nEvidence:\n")
	b.WriteString(ev.Summary())
	if ev.TestResults != "" {
		fmt.Fprintf(&b, "\nTest results:\n%s\n", ev.TestResults)
	}
	if ev.GitStatus != "" {
		fmt.Fprintf(&b, "\nWorking tree:\n%s\n", ev.GitStatus)
	}
	if ev.RecentLog != "" {
		fmt.Fprintf(&b, "\nRecent commits:\n%s\n", ev.RecentLog)
	}

	if len(prior) > 0 {
		b.WriteString("\nAll members voted before you:\n")
		for _, v := range prior {
			fmt.Fprintf(&b, "  %s: %s\n", v.MemberID, v.Verdict)
		}
		b.WriteString("Scrutinize their unanimity. Find any disqualifying issue they may have glossed over.\n")
	}

	b.WriteString("\nReply with exactly one VERDICT line and zero or more ISSUE lines:\n")
	b.WriteString("VERDICT: APPROVE or VERDICT: REJECT\n")
	b.WriteString("ISSUE(critical|high|medium|low): <description>\n")
	b.WriteString("REASONING: <one sentence>\n")
	return b.String()
}

// parseVote extracts the structured vote from an evaluator reply.
func parseVote(transcript string) (domain.CouncilVote, error) {
	var vote domain.CouncilVote
	verdictSeen := false

	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "VERDICT:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:"))
			switch strings.ToUpper(value) {
			case "APPROVE":
				vote.Verdict = domain.VerdictApprove
			case "REJECT":
				vote.Verdict = domain.VerdictReject
			default:
				return vote, fmt.Errorf("unrecognized verdict %q", value)
			}
			verdictSeen = true
		case strings.HasPrefix(line, "ISSUE("):
			if issue, ok := parseIssue(line); ok {
				vote.Issues = append(vote.Issues, issue)
			}
		case strings.HasPrefix(line, "REASONING:"):
			vote.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}

	if !verdictSeen {
		return vote, fmt.Errorf("no VERDICT line in evaluator reply")
	}
	return vote, nil
}

func parseIssue(line string) (domain.Issue, bool) {
	rest := strings.TrimPrefix(line, "ISSUE(")
	end := strings.Index(rest, "):")
	if end == -1 {
		return domain.Issue{}, false
	}
	severity := domain.Severity(strings.ToLower(strings.TrimSpace(rest[:end])))
	switch severity {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
	default:
		return domain.Issue{}, false
	}
	return domain.Issue{
		Severity:    severity,
		Description: strings.TrimSpace(rest[end+2:]),
	}, true
}
