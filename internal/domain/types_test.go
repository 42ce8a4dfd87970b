package domain

import "testing"

func TestPhaseForIteration(t *testing.T) {
	cases := []struct {
		iteration int
		phase     Phase
		tier      Tier
	}{
		{0, PhaseReason, TierPlanning},
		{1, PhaseAct, TierDevelopment},
		{2, PhaseReflect, TierDevelopment},
		{3, PhaseVerify, TierFast},
		{4, PhaseReason, TierPlanning},
		{7, PhaseVerify, TierFast},
	}

	for _, tc := range cases {
		if got := PhaseForIteration(tc.iteration); got != tc.phase {
			t.Errorf("PhaseForIteration(%d) = %q, want %q", tc.iteration, got, tc.phase)
		}
		if got := TierForPhase(tc.phase); got != tc.tier {
			t.Errorf("TierForPhase(%q) = %q, want %q", tc.phase, got, tc.tier)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to TaskStatus }{
		{StatusPending, StatusInProgress},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusFailed},
		{StatusFailed, StatusPending},
		{StatusFailed, StatusDeadLetter},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%q, %q) = false, want true", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to TaskStatus }{
		{StatusPending, StatusCompleted},
		{StatusCompleted, StatusPending},
		{StatusDeadLetter, StatusPending},
		{StatusInProgress, StatusDeadLetter},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%q, %q) = true, want false", tc.from, tc.to)
		}
	}
}

func TestRoleForMember(t *testing.T) {
	want := []MemberRole{
		RoleRequirementsVerifier, RoleTestAuditor, RoleDevilsAdvocate,
		RoleRequirementsVerifier, RoleTestAuditor,
	}
	for i, role := range want {
		if got := RoleForMember(i); got != role {
			t.Errorf("RoleForMember(%d) = %q, want %q", i, got, role)
		}
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityLow) {
		t.Error("critical should be at least low")
	}
	if !SeverityLow.AtLeast(SeverityLow) {
		t.Error("low should be at least low")
	}
	if SeverityLow.AtLeast(SeverityCritical) {
		t.Error("low should not be at least critical")
	}
	if SeverityMedium.AtLeast(SeverityHigh) {
		t.Error("medium should not be at least high")
	}
}
