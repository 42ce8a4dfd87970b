// Package checkpoint persists loop progress so an interrupted run resumes
// exactly where it stopped.
package checkpoint

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/atomicfile"
)

// State is the single mutable checkpoint record, overwritten atomically
// every iteration.
type State struct {
	RetryCount     int       `json:"retry_count"`
	IterationCount int       `json:"iteration_count"`
	Status         string    `json:"status"`
	LastExitCode   int       `json:"last_exit_code"`
	LastRunAt      time.Time `json:"last_run_at"`
}

// Store reads and writes the checkpoint file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a checkpoint store at the given file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Save atomically overwrites the checkpoint.
func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.LastRunAt = time.Now()
	return atomicfile.WriteJSON(s.path, state)
}

// Load returns the persisted checkpoint. A missing or corrupt file yields
// the zero-valued default so the controller always has a valid starting
// point.
func (s *Store) Load() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return State{}
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}
	}
	return state
}
