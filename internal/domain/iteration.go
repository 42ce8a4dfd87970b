package domain

import "time"

// IterationRecord captures one pass through the loop. Records are created at
// iteration start, sealed at iteration end, and kept as append-only history.
type IterationRecord struct {
	Iteration int           `json:"iteration"`
	Phase     Phase         `json:"phase"`
	Tier      Tier          `json:"tier"`
	StartedAt time.Time     `json:"started_at"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// NewIterationRecord opens a record for the given iteration number.
func NewIterationRecord(iteration int) *IterationRecord {
	phase := PhaseForIteration(iteration)
	return &IterationRecord{
		Iteration: iteration,
		Phase:     phase,
		Tier:      TierForPhase(phase),
		StartedAt: time.Now(),
	}
}

// Seal closes the record with the executor's exit code.
func (r *IterationRecord) Seal(exitCode int) {
	code := exitCode
	r.ExitCode = &code
	r.Duration = time.Since(r.StartedAt)
}
