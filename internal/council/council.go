// Package council implements the completion quorum: independent member
// votes over a shared evidence bundle, two-thirds aggregation, a
// severity-aware error budget, and an adversarial re-check on unanimous
// approval.
package council

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/atomicfile"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// CompletionMarker is the terminal file written when the council approves.
const CompletionMarker = "COUNCIL_APPROVED"

// Config controls council behavior.
type Config struct {
	// Size is the number of voting members.
	Size int
	// BlockingSeverity is the minimum severity that blocks completion.
	// When set below SeverityLow is impossible; setting it above
	// SeverityLow enables the error budget: REJECT votes whose issues all
	// fall below this threshold are recoded to APPROVE.
	BlockingSeverity domain.Severity
	// RoundsDir is where immutable per-round JSON files are written.
	RoundsDir string
}

// Council runs completion votes.
type Council struct {
	cfg       Config
	evaluator Evaluator
	fallback  Evaluator

	mu sync.Mutex
}

// New creates a Council. evaluator may be nil, in which case every round
// uses the deterministic heuristic fallback.
func New(cfg Config, evaluator Evaluator) *Council {
	if cfg.Size <= 0 {
		cfg.Size = 3
	}
	if cfg.BlockingSeverity == "" {
		cfg.BlockingSeverity = domain.SeverityLow
	}
	return &Council{cfg: cfg, evaluator: evaluator, fallback: HeuristicEvaluator{}}
}

// Threshold returns the two-thirds approval threshold for n members:
// ceil(2n/3).
func Threshold(n int) int {
	return (2*n + 2) / 3
}

// RunRound collects one vote per member, applies the severity override and
// anti-sycophancy re-check, aggregates, and persists the immutable round.
func (c *Council) RunRound(ctx context.Context, iteration int, ev Evidence) (*domain.CouncilRound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	round := &domain.CouncilRound{
		RoundID:   uuid.NewString(),
		Iteration: iteration,
		StartedAt: time.Now(),
		Threshold: Threshold(c.cfg.Size),
	}

	members := Members(c.cfg.Size)
	votes, usedFallback := c.collectVotes(ctx, members, ev)
	round.Fallback = usedFallback

	// Error budget: a REJECT whose issues all fall below the blocking
	// threshold is recoded to APPROVE. A REJECT carrying no parsed issues
	// stays a REJECT; the budget only forgives issues it can weigh.
	for i := range votes {
		if votes[i].Verdict == domain.VerdictReject && len(votes[i].Issues) > 0 && !votes[i].BlockingIssue(c.cfg.BlockingSeverity) {
			votes[i].Verdict = domain.VerdictApprove
			votes[i].Reasoning += " (recoded: all issues below blocking severity)"
		}
	}
	round.Votes = votes

	for _, vote := range votes {
		if vote.Verdict == domain.VerdictApprove {
			round.ApproveCount++
		} else {
			round.RejectCount++
		}
	}

	round.Verdict = domain.RoundContinue
	if round.ApproveCount >= round.Threshold {
		round.Verdict = domain.RoundComplete
	}

	// Anti-sycophancy: a unanimous approval gets one adversarial
	// re-evaluation that sees all prior verdicts. A REJECT there removes
	// exactly one approval and the unanimity-gated verdict is recomputed
	// against the full-council count, so a single contrarian forces
	// another loop pass. Independent members asked the same question tend
	// to converge; this pass catches correlated false positives.
	if round.ApproveCount == c.cfg.Size && c.cfg.Size >= 3 {
		advocate := Member{ID: "anti-sycophancy-advocate", Role: domain.RoleDevilsAdvocate}
		recheck, err := c.evaluate(ctx, advocate, ev, votes)
		if err != nil {
			recheck, _ = c.fallback.Evaluate(ctx, advocate, ev, votes)
		}
		round.AntiSycophancyOverride = &recheck
		if recheck.Verdict == domain.VerdictReject {
			round.ApproveCount--
			if round.ApproveCount < c.cfg.Size {
				round.Verdict = domain.RoundContinue
			}
		}
	}

	if err := c.persistRound(round); err != nil {
		return nil, err
	}
	return round, nil
}

// collectVotes evaluates every member independently. Members never see each
// other's verdicts, so votes can run concurrently. If the external
// evaluator fails for any member, that member falls back to the
// deterministic heuristic rather than blocking the round.
func (c *Council) collectVotes(ctx context.Context, members []Member, ev Evidence) ([]domain.CouncilVote, bool) {
	votes := make([]domain.CouncilVote, len(members))
	usedFallback := false

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, member := range members {
		wg.Add(1)
		go func(i int, member Member) {
			defer wg.Done()
			vote, err := c.evaluate(ctx, member, ev, nil)
			if err != nil {
				vote, _ = c.fallback.Evaluate(ctx, member, ev, nil)
				mu.Lock()
				usedFallback = true
				mu.Unlock()
			}
			votes[i] = vote
		}(i, member)
	}
	wg.Wait()

	if c.evaluator == nil {
		usedFallback = true
	}
	return votes, usedFallback
}

func (c *Council) evaluate(ctx context.Context, member Member, ev Evidence, prior []domain.CouncilVote) (domain.CouncilVote, error) {
	if c.evaluator == nil {
		return c.fallback.Evaluate(ctx, member, ev, prior)
	}
	return c.evaluator.Evaluate(ctx, member, ev, prior)
}

// persistRound writes the immutable per-round JSON file and, on approval,
// the terminal completion marker.
func (c *Council) persistRound(round *domain.CouncilRound) error {
	if c.cfg.RoundsDir == "" {
		return nil
	}
	path := filepath.Join(c.cfg.RoundsDir, fmt.Sprintf("round-%s.json", round.RoundID))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("council round %s already persisted", round.RoundID)
	}
	if err := atomicfile.WriteJSON(path, round); err != nil {
		return fmt.Errorf("persisting council round: %w", err)
	}
	if round.Verdict == domain.RoundComplete {
		marker := filepath.Join(c.cfg.RoundsDir, CompletionMarker)
		if err := atomicfile.Write(marker, []byte(round.RoundID+"\n")); err != nil {
			return err
		}
	}
	return nil
}
