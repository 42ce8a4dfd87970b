package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-loop-orchestrator/internal/observer"
)

// SnapshotSource provides the current loop snapshot.
type SnapshotSource interface {
	Collect() observer.Snapshot
}

// TaskSource provides queue contents.
type TaskSource interface {
	List(q domain.TaskStatus) ([]*domain.Task, error)
}

// HistorySource provides audit data for past runs.
type HistorySource interface {
	RecentOutcomes(limit int) ([]history.RunOutcome, error)
	ListRounds(runID string) ([]history.RoundSummary, error)
}

// Sources bundles the data feeds the dashboard renders. Any field may be
// nil; the corresponding section then shows as unavailable.
type Sources struct {
	Snapshots SnapshotSource
	Tasks     TaskSource
	History   HistorySource
}

// Model is the TUI application model
type Model struct {
	sources Sources

	// Data
	snapshot observer.Snapshot
	tasks    []*domain.Task
	outcomes []history.RunOutcome
	rounds   []history.RoundSummary

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	taskScroll  int

	// Refresh
	lastRefresh time.Time
}

// NewModel creates a new TUI model
func NewModel(sources Sources) Model {
	m := Model{sources: sources}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *Model) refresh() {
	if m.sources.Snapshots != nil {
		m.snapshot = m.sources.Snapshots.Collect()
	}
	if m.sources.Tasks != nil {
		var tasks []*domain.Task
		for _, q := range domain.Queues {
			list, err := m.sources.Tasks.List(q)
			if err != nil {
				continue
			}
			tasks = append(tasks, list...)
		}
		m.tasks = tasks
	}
	if m.sources.History != nil {
		if outcomes, err := m.sources.History.RecentOutcomes(20); err == nil {
			m.outcomes = outcomes
		}
		if len(m.outcomes) > 0 {
			if rounds, err := m.sources.History.ListRounds(m.outcomes[0].RunID); err == nil {
				m.rounds = rounds
			}
		}
	}
	m.lastRefresh = time.Now()
}
