package history

const schema = `
CREATE TABLE IF NOT EXISTS iterations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    phase TEXT NOT NULL,
    tier TEXT NOT NULL,
    exit_code INTEGER,
    diff_fingerprint TEXT,
    files_changed INTEGER DEFAULT 0,
    retry_count INTEGER DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    duration_ms INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_iterations_run_id ON iterations(run_id);
CREATE INDEX IF NOT EXISTS idx_iterations_iteration ON iterations(iteration);

CREATE TABLE IF NOT EXISTS council_rounds (
    round_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    approve_count INTEGER NOT NULL,
    reject_count INTEGER NOT NULL,
    threshold INTEGER NOT NULL,
    verdict TEXT NOT NULL,
    override_applied BOOLEAN DEFAULT FALSE,
    fallback BOOLEAN DEFAULT FALSE,
    started_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_council_rounds_run_id ON council_rounds(run_id);

CREATE TABLE IF NOT EXISTS run_outcomes (
    run_id TEXT PRIMARY KEY,
    outcome TEXT NOT NULL,
    iterations INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);
`
