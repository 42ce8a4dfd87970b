// Package history provides SQLite-backed audit storage for loop runs. The
// live queues and checkpoint stay in JSON files; history is the append-only
// record queried by the status and TUI surfaces.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// IterationRow is one persisted iteration with its convergence context.
type IterationRow struct {
	RunID           string
	Record          domain.IterationRecord
	DiffFingerprint string
	FilesChanged    int
	RetryCount      int
}

// SaveIteration appends a sealed iteration record
func (s *Store) SaveIteration(row IterationRow) error {
	var exitCode sql.NullInt64
	if row.Record.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*row.Record.ExitCode), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO iterations (run_id, iteration, phase, tier, exit_code, diff_fingerprint, files_changed, retry_count, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.RunID,
		row.Record.Iteration,
		string(row.Record.Phase),
		string(row.Record.Tier),
		exitCode,
		row.DiffFingerprint,
		row.FilesChanged,
		row.RetryCount,
		row.Record.StartedAt,
		row.Record.Duration.Milliseconds(),
	)
	return err
}

// ListIterations returns the iterations of a run, oldest first
func (s *Store) ListIterations(runID string) ([]IterationRow, error) {
	rows, err := s.db.Query(`
		SELECT run_id, iteration, phase, tier, exit_code, diff_fingerprint, files_changed, retry_count, started_at, duration_ms
		FROM iterations WHERE run_id = ? ORDER BY iteration
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IterationRow
	for rows.Next() {
		row, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SaveRound stores the summary of a council round. Full round detail lives
// in the immutable per-round JSON files.
func (s *Store) SaveRound(runID string, round *domain.CouncilRound) error {
	_, err := s.db.Exec(`
		INSERT INTO council_rounds (round_id, run_id, iteration, approve_count, reject_count, threshold, verdict, override_applied, fallback, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		round.RoundID,
		runID,
		round.Iteration,
		round.ApproveCount,
		round.RejectCount,
		round.Threshold,
		string(round.Verdict),
		round.AntiSycophancyOverride != nil,
		round.Fallback,
		round.StartedAt,
	)
	return err
}

// RoundSummary is the persisted digest of one council round.
type RoundSummary struct {
	RoundID         string
	Iteration       int
	ApproveCount    int
	RejectCount     int
	Threshold       int
	Verdict         domain.RoundVerdict
	OverrideApplied bool
	Fallback        bool
	StartedAt       time.Time
}

// ListRounds returns the council rounds of a run, oldest first
func (s *Store) ListRounds(runID string) ([]RoundSummary, error) {
	rows, err := s.db.Query(`
		SELECT round_id, iteration, approve_count, reject_count, threshold, verdict, override_applied, fallback, started_at
		FROM council_rounds WHERE run_id = ? ORDER BY iteration
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundSummary
	for rows.Next() {
		var r RoundSummary
		var verdict string
		if err := rows.Scan(&r.RoundID, &r.Iteration, &r.ApproveCount, &r.RejectCount, &r.Threshold, &verdict, &r.OverrideApplied, &r.Fallback, &r.StartedAt); err != nil {
			return nil, err
		}
		r.Verdict = domain.RoundVerdict(verdict)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunOutcome records how a run terminated.
type RunOutcome struct {
	RunID      string
	Outcome    string
	Iterations int
	StartedAt  time.Time
	FinishedAt time.Time
}

// SaveOutcome stores a run's terminal state
func (s *Store) SaveOutcome(o RunOutcome) error {
	_, err := s.db.Exec(`
		INSERT INTO run_outcomes (run_id, outcome, iterations, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			outcome = excluded.outcome,
			iterations = excluded.iterations,
			finished_at = excluded.finished_at
	`, o.RunID, o.Outcome, o.Iterations, o.StartedAt, o.FinishedAt)
	return err
}

// GetOutcome retrieves a run's terminal state
func (s *Store) GetOutcome(runID string) (*RunOutcome, error) {
	row := s.db.QueryRow(`
		SELECT run_id, outcome, iterations, started_at, finished_at
		FROM run_outcomes WHERE run_id = ?
	`, runID)

	var o RunOutcome
	if err := row.Scan(&o.RunID, &o.Outcome, &o.Iterations, &o.StartedAt, &o.FinishedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// RecentOutcomes returns the most recent run outcomes, newest first
func (s *Store) RecentOutcomes(limit int) ([]RunOutcome, error) {
	rows, err := s.db.Query(`
		SELECT run_id, outcome, iterations, started_at, finished_at
		FROM run_outcomes ORDER BY finished_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunOutcome
	for rows.Next() {
		var o RunOutcome
		if err := rows.Scan(&o.RunID, &o.Outcome, &o.Iterations, &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanIteration(rows *sql.Rows) (IterationRow, error) {
	var row IterationRow
	var phase, tier string
	var exitCode sql.NullInt64
	var durationMs int64

	err := rows.Scan(&row.RunID, &row.Record.Iteration, &phase, &tier, &exitCode, &row.DiffFingerprint, &row.FilesChanged, &row.RetryCount, &row.Record.StartedAt, &durationMs)
	if err != nil {
		return IterationRow{}, err
	}

	row.Record.Phase = domain.Phase(phase)
	row.Record.Tier = domain.Tier(tier)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		row.Record.ExitCode = &code
	}
	row.Record.Duration = time.Duration(durationMs) * time.Millisecond
	return row, nil
}
