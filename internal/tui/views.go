package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return "Closing watch...\n"
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatus())

	if m.ready {
		sections = append(sections, m.viewport.View())
	} else if m.fetched {
		sections = append(sections, logPanelStyle.Render(strings.Join(m.status.Logs, "\n")))
	}

	sections = append(sections, m.renderHelpBar())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderHeader renders the watch header.
func (m Model) renderHeader() string {
	title := titleStyle.Render(fmt.Sprintf("Watching %s job", m.kind))
	subtitle := subtitleStyle.Render(m.jobID)

	header := lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", subtitle)
	return headerStyle.Render(header)
}

// renderStatus renders the current job status line.
func (m Model) renderStatus() string {
	if m.errorMessage != "" {
		return statusErrorStyle.Render(fmt.Sprintf(" %s %s", iconError, m.errorMessage))
	}
	if !m.fetched {
		return fmt.Sprintf(" %s fetching job status...", m.spinner.View())
	}

	var line string
	switch m.status.Status {
	case "running":
		line = fmt.Sprintf(" %s %s", m.spinner.View(), statusRunningStyle.Render("Running"))
	case "success":
		line = statusSuccessStyle.Render(fmt.Sprintf(" %s Succeeded", iconSuccess))
		if len(m.status.Artifacts) > 0 {
			line += "  " + keyStyle.Render("artifacts:") + " " + valueStyle.Render(strings.Join(m.status.Artifacts, ", "))
		}
	case "failed":
		line = statusErrorStyle.Render(fmt.Sprintf(" %s Failed", iconError))
		if m.status.ExitCode != nil {
			line += "  " + keyStyle.Render("exit:") + " " + valueStyle.Render(fmt.Sprintf("%d", *m.status.ExitCode))
		}
		if m.status.Error != "" {
			line += "\n " + statusErrorStyle.Render(m.status.Error)
		}
	case "cancelled":
		line = statusCancelledStyle.Render(fmt.Sprintf(" %s Cancelled", iconCancelled))
	default:
		line = subtitleStyle.Render(" " + m.status.Status)
	}

	line += "  " + keyStyle.Render(fmt.Sprintf("%d log lines", len(m.status.Logs)))
	return line
}

// renderHelpBar renders the key hints.
func (m Model) renderHelpBar() string {
	return helpStyle.Render("↑/↓ scroll  g/G top/bottom  r refresh  q quit")
}
