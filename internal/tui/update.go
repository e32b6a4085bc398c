package tui

import (
	"strings"

	"github.com/aptove/xcbridge/internal/server"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles incoming messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		return m, nil

	case tickMsg:
		if m.terminal() {
			return m, nil
		}
		return m, m.fetchCmd()

	case statusMsg:
		m.applyStatus(msg)
		if m.terminal() {
			return m, nil
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case error:
		m.errorMessage = msg.Error()
		// Keep polling; transient fetch errors should not end the watch.
		if !m.terminal() {
			return m, tickCmd()
		}
		return m, nil
	}

	return m, nil
}

// applyStatus folds a fetched record into the model and refreshes the log
// viewport, keeping it pinned to the bottom while new lines arrive.
func (m *Model) applyStatus(msg statusMsg) {
	wasAtBottom := !m.ready || m.viewport.AtBottom()

	m.status = server.JobStatusResponse(msg)
	m.fetched = true
	m.errorMessage = ""

	if m.ready {
		m.viewport.SetContent(strings.Join(m.status.Logs, "\n"))
		if wasAtBottom {
			m.viewport.GotoBottom()
		}
	}
}

// resizeViewport fits the log viewport into the current terminal size.
func (m *Model) resizeViewport() {
	headerHeight := 6
	footerHeight := 2
	height := m.height - headerHeight - footerHeight
	if height < 3 {
		height = 3
	}

	if !m.ready {
		m.viewport = newLogViewport(m.width-4, height)
		m.viewport.SetContent(strings.Join(m.status.Logs, "\n"))
		m.viewport.GotoBottom()
		m.ready = true
		return
	}

	m.viewport.Width = m.width - 4
	m.viewport.Height = height
}

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "g":
		if m.ready {
			m.viewport.GotoTop()
		}
		return m, nil

	case "G":
		if m.ready {
			m.viewport.GotoBottom()
		}
		return m, nil

	case "r":
		// Manual refresh
		if !m.terminal() {
			return m, m.fetchCmd()
		}
		return m, nil
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}
