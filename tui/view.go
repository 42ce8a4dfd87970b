package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/claude-loop-orchestrator/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	queuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

var tabNames = []string{"Dashboard", "Tasks", "History"}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" Claude Loop │ %s │ Iteration: %d │ Phase: %s │ Retries: %d ",
		statusLabel(m.snapshot.Status), m.snapshot.Iteration, m.snapshot.Phase, m.snapshot.RetryCount)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.activeTab {
	case 0:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderStatus()))
		b.WriteString("\n")
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderQueues()))
		b.WriteString("\n")
	case 1:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderTasks()))
		b.WriteString("\n")
	case 2:
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRuns()))
		b.WriteString("\n")
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRounds()))
		b.WriteString("\n")
	}

	statusBar := " [tab]switch [t]asks [h]istory [j/k]scroll [r]efresh [q]uit "
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) renderTabs() string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(name)
		} else {
			parts[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) renderStatus() string {
	var b strings.Builder
	b.WriteString("Loop\n")
	b.WriteString(fmt.Sprintf("  Status:       %s\n", statusLabel(m.snapshot.Status)))
	b.WriteString(fmt.Sprintf("  Iteration:    %d (%s)\n", m.snapshot.Iteration, m.snapshot.Phase))
	b.WriteString(fmt.Sprintf("  Retries:      %d\n", m.snapshot.RetryCount))
	b.WriteString(fmt.Sprintf("  Stagnation:   %d identical diffs, %d done signals\n",
		m.snapshot.ConsecutiveNoChange, m.snapshot.DoneSignals))
	b.WriteString(fmt.Sprintf("  Resources:    %d goroutines, heap %s, rss %s\n",
		m.snapshot.Resources.Goroutines,
		humanize.Bytes(m.snapshot.Resources.HeapBytes),
		humanize.Bytes(m.snapshot.Resources.RSSBytes)))
	if !m.lastRefresh.IsZero() {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("  Refreshed:    %s", humanize.Time(m.lastRefresh))))
	}
	return b.String()
}

func (m Model) renderQueues() string {
	var b strings.Builder
	b.WriteString("Queues\n")
	if len(m.snapshot.QueueCounts) == 0 {
		b.WriteString(dimmedStyle.Render("  no queue data"))
		return b.String()
	}
	for _, q := range domain.Queues {
		b.WriteString(fmt.Sprintf("  %-12s %d\n", string(q), m.snapshot.QueueCounts[q]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderTasks() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Tasks (%d)\n", len(m.tasks)))
	if len(m.tasks) == 0 {
		b.WriteString(dimmedStyle.Render("  no tasks"))
		return b.String()
	}

	visible := m.visibleRows()
	start := m.taskScroll
	if start > len(m.tasks)-1 {
		start = len(m.tasks) - 1
	}
	end := start + visible
	if end > len(m.tasks) {
		end = len(m.tasks)
	}

	for _, task := range m.tasks[start:end] {
		line := fmt.Sprintf("  %-8s %-12s %-8s %s", task.ID, string(task.Status), string(task.Priority), task.Title)
		switch task.Status {
		case domain.StatusInProgress:
			b.WriteString(warningStyle.Render(line))
		case domain.StatusCompleted:
			b.WriteString(runningStyle.Render(line))
		case domain.StatusFailed:
			b.WriteString(failedStyle.Render(line))
		default:
			b.WriteString(queuedStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if end < len(m.tasks) {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("  ... %d more", len(m.tasks)-end)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderRuns() string {
	var b strings.Builder
	b.WriteString("Recent runs\n")
	if len(m.outcomes) == 0 {
		b.WriteString(dimmedStyle.Render("  no completed runs"))
		return b.String()
	}
	for _, o := range m.outcomes {
		line := fmt.Sprintf("  %-20s %-26s %3d iterations  %s",
			o.RunID, o.Outcome, o.Iterations, humanize.Time(o.FinishedAt))
		if o.Outcome == "max_retries_exceeded" {
			b.WriteString(failedStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderRounds() string {
	var b strings.Builder
	b.WriteString("Council rounds\n")
	if len(m.rounds) == 0 {
		b.WriteString(dimmedStyle.Render("  no rounds recorded"))
		return b.String()
	}
	for _, r := range m.rounds {
		marks := ""
		if r.OverrideApplied {
			marks += " override"
		}
		if r.Fallback {
			marks += " fallback"
		}
		line := fmt.Sprintf("  iter %-4d %d/%d approvals (threshold %d)  %s%s",
			r.Iteration, r.ApproveCount, r.ApproveCount+r.RejectCount, r.Threshold, r.Verdict, marks)
		if r.Verdict == domain.RoundComplete {
			b.WriteString(runningStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) visibleRows() int {
	rows := m.height - 8
	if rows < 5 {
		rows = 5
	}
	return rows
}

func statusLabel(status string) string {
	if status == "" {
		return "idle"
	}
	return status
}
