package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

const tabCount = 3

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.refresh()
			return m, nil
		case "j", "down":
			m.selectedRow++
			if m.activeTab == 1 {
				m.taskScroll++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			if m.activeTab == 1 && m.taskScroll > 0 {
				m.taskScroll--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
			m.taskScroll = 0
		case "t":
			m.activeTab = 1
			m.taskScroll = 0
		case "h":
			m.activeTab = 2
			m.taskScroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.refresh()
		return m, tickCmd()
	}

	return m, nil
}
