// Package taskstore persists work items as per-queue JSON array files.
// The files are plain JSON so dashboards and external tooling can read
// them without going through an API. All mutations go through a single
// store-level mutex and the atomic temp-file-then-rename write path.
package taskstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/atomicfile"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

// ErrNotFound is returned when a task is absent from its expected queue.
// Callers use it to detect double-transition races.
var ErrNotFound = errors.New("task not found in expected queue")

// Store provides file-backed task queues under a single directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a Store rooted at dir, creating the queue directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating queue dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the queue directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) queuePath(q domain.TaskStatus) string {
	return filepath.Join(s.dir, string(q)+".json")
}

// readQueue loads a queue file. A missing file is an empty queue.
func (s *Store) readQueue(q domain.TaskStatus) ([]*domain.Task, error) {
	data, err := os.ReadFile(s.queuePath(q))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tasks []*domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parsing queue %s: %w", q, err)
	}
	return tasks, nil
}

func (s *Store) writeQueue(q domain.TaskStatus, tasks []*domain.Task) error {
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return atomicfile.WriteJSON(s.queuePath(q), tasks)
}

// Enqueue appends a task to the pending queue. The task id must not exist
// in any queue.
func (s *Store) Enqueue(task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if home, err := s.findLocked(task.ID); err != nil {
		return err
	} else if home != "" {
		return fmt.Errorf("task %s already present in queue %s", task.ID, home)
	}

	task.Status = domain.StatusPending
	pending, err := s.readQueue(domain.StatusPending)
	if err != nil {
		return err
	}
	return s.writeQueue(domain.StatusPending, append(pending, task))
}

// Dequeue removes and returns the highest-priority task from the given
// queue, or nil if the queue is empty.
func (s *Store) Dequeue(q domain.TaskStatus) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.readQueue(q)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return priorityOrder(tasks[i].Priority) < priorityOrder(tasks[j].Priority)
	})

	task := tasks[0]
	if err := s.writeQueue(q, tasks[1:]); err != nil {
		return nil, err
	}
	return task, nil
}

// Claim moves the highest-priority pending task to in_progress and returns
// it, or nil if nothing is pending.
func (s *Store) Claim() (*domain.Task, error) {
	s.mu.Lock()
	tasks, err := s.readQueue(domain.StatusPending)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if len(tasks) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return priorityOrder(tasks[i].Priority) < priorityOrder(tasks[j].Priority)
	})
	id := tasks[0].ID
	s.mu.Unlock()

	if err := s.Transition(id, domain.StatusInProgress, ""); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Transition moves a task from its current queue to the queue matching the
// target status. It fails with ErrNotFound if the task is not where its
// status says it should be, and verifies the id does not exist anywhere else.
func (s *Store) Transition(taskID string, to domain.TaskStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.findLocked(taskID)
	if err != nil {
		return err
	}
	if from == "" {
		return fmt.Errorf("transition %s -> %s: %w", taskID, to, ErrNotFound)
	}
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s for task %s", from, to, taskID)
	}

	source, err := s.readQueue(from)
	if err != nil {
		return err
	}

	var task *domain.Task
	remaining := source[:0]
	for _, t := range source {
		if t.ID == taskID {
			task = t
			continue
		}
		remaining = append(remaining, t)
	}
	if task == nil {
		return fmt.Errorf("transition %s -> %s: %w", taskID, to, ErrNotFound)
	}

	now := time.Now()
	task.Status = to
	switch to {
	case domain.StatusInProgress:
		task.StartedAt = &now
	case domain.StatusCompleted:
		task.CompletedAt = &now
	case domain.StatusFailed, domain.StatusDeadLetter:
		if reason != "" {
			task.LastError = reason
		}
	}

	dest, err := s.readQueue(to)
	if err != nil {
		return err
	}

	// Write the source queue first: if we crash between the two writes the
	// task is briefly in no queue, which resume handles, rather than in two.
	if err := s.writeQueue(from, remaining); err != nil {
		return err
	}
	return s.writeQueue(to, append(dest, task))
}

// Fail marks a task failed, bumping its retry count, and dead-letters it
// once retryCeiling is exceeded.
func (s *Store) Fail(taskID, reason string, retryCeiling int) error {
	if err := s.Transition(taskID, domain.StatusFailed, reason); err != nil {
		return err
	}

	s.mu.Lock()
	tasks, err := s.readQueue(domain.StatusFailed)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	retries := 0
	for _, t := range tasks {
		if t.ID == taskID {
			t.RetryCount++
			retries = t.RetryCount
			break
		}
	}
	if err := s.writeQueue(domain.StatusFailed, tasks); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if retries > retryCeiling {
		return s.Transition(taskID, domain.StatusDeadLetter,
			fmt.Sprintf("retry ceiling %d exceeded: %s", retryCeiling, reason))
	}
	return nil
}

// Count returns the number of tasks in a queue.
func (s *Store) Count(q domain.TaskStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.readQueue(q)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// Counts returns the task count for every queue.
func (s *Store) Counts() (map[domain.TaskStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.TaskStatus]int, len(domain.Queues))
	for _, q := range domain.Queues {
		tasks, err := s.readQueue(q)
		if err != nil {
			return nil, err
		}
		counts[q] = len(tasks)
	}
	return counts, nil
}

// List returns the tasks in a queue without removing them.
func (s *Store) List(q domain.TaskStatus) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readQueue(q)
}

// Get returns a task by id from whichever queue holds it, or nil.
func (s *Store) Get(taskID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(taskID), nil
}

func (s *Store) getLocked(taskID string) *domain.Task {
	for _, q := range domain.Queues {
		tasks, err := s.readQueue(q)
		if err != nil {
			continue
		}
		for _, t := range tasks {
			if t.ID == taskID {
				return t
			}
		}
	}
	return nil
}

// findLocked returns the queue currently holding taskID, or "". It also
// enforces the invariant that an id appears in at most one queue.
func (s *Store) findLocked(taskID string) (domain.TaskStatus, error) {
	var home domain.TaskStatus
	for _, q := range domain.Queues {
		tasks, err := s.readQueue(q)
		if err != nil {
			return "", err
		}
		for _, t := range tasks {
			if t.ID != taskID {
				continue
			}
			if home != "" {
				return "", fmt.Errorf("task %s present in both %s and %s queues", taskID, home, q)
			}
			home = q
		}
	}
	return home, nil
}

func priorityOrder(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 0
	case domain.PriorityLow:
		return 2
	default:
		return 1
	}
}
