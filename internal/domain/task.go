package domain

import "time"

// Task represents a unit of work handed to the iteration loop.
// Tasks live in exactly one queue at a time and are mutated only
// through the task store's transition API.
type Task struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	Source      string     `json:"source"`
	RetryCount  int        `json:"retry_count"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// NewTask creates a pending task with defaults filled in.
func NewTask(id, title, description string) *Task {
	return &Task{
		ID:          id,
		Type:        "feature",
		Title:       title,
		Description: description,
		Status:      StatusPending,
		Priority:    PriorityNormal,
		Source:      "manual",
		CreatedAt:   time.Now(),
	}
}
