package domain

import "time"

// Verdict is a single member's vote on completion.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictReject  Verdict = "REJECT"
)

// RoundVerdict is the aggregated decision of a council round.
type RoundVerdict string

const (
	RoundComplete RoundVerdict = "COMPLETE"
	RoundContinue RoundVerdict = "CONTINUE"
)

// MemberRole identifies the perspective a council member evaluates from.
type MemberRole string

const (
	RoleRequirementsVerifier MemberRole = "requirements_verifier"
	RoleTestAuditor          MemberRole = "test_auditor"
	RoleDevilsAdvocate       MemberRole = "devils_advocate"
)

// roleCycle is the repeating role assignment for council members.
var roleCycle = []MemberRole{RoleRequirementsVerifier, RoleTestAuditor, RoleDevilsAdvocate}

// RoleForMember assigns a role to the i-th council member.
func RoleForMember(i int) MemberRole {
	return roleCycle[i%len(roleCycle)]
}

// Severity classifies an issue found by a council member.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast returns true if s is at or above the given threshold severity.
func (s Severity) AtLeast(threshold Severity) bool {
	return severityRank[s] >= severityRank[threshold]
}

// Issue is a single problem reported in a council vote.
type Issue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// CouncilVote is one member's evaluation of the completion evidence.
type CouncilVote struct {
	MemberID  string     `json:"member_id"`
	Role      MemberRole `json:"role"`
	Verdict   Verdict    `json:"verdict"`
	Reasoning string     `json:"reasoning"`
	Issues    []Issue    `json:"issues,omitempty"`
}

// BlockingIssue returns true if any issue meets or exceeds the threshold.
func (v CouncilVote) BlockingIssue(threshold Severity) bool {
	for _, issue := range v.Issues {
		if issue.Severity.AtLeast(threshold) {
			return true
		}
	}
	return false
}

// CouncilRound records one full council invocation. Rounds are immutable
// once written.
type CouncilRound struct {
	RoundID                string        `json:"round_id"`
	Iteration              int           `json:"iteration"`
	StartedAt              time.Time     `json:"started_at"`
	Votes                  []CouncilVote `json:"votes"`
	ApproveCount           int           `json:"approve_count"`
	RejectCount            int           `json:"reject_count"`
	Threshold              int           `json:"threshold"`
	Verdict                RoundVerdict  `json:"verdict"`
	AntiSycophancyOverride *CouncilVote  `json:"anti_sycophancy_override,omitempty"`
	Fallback               bool          `json:"fallback,omitempty"`
}
