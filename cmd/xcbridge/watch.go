package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aptove/xcbridge/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Watch a running job in a terminal UI",
	Long: `Watch a build or test job in an interactive terminal UI.

This command polls a running xcbridge server for the job's status and
renders its log output live, with the outcome shown once the job
finishes.

Navigation:
  ↑/↓         - Scroll log output
  g/G         - Jump to top/bottom
  r           - Refresh now
  q           - Quit

Example:
  xcbridge watch 4f7c2e1a-... --server http://127.0.0.1:9090`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("server", "http://127.0.0.1:9090", "Base URL of the xcbridge server")
	watchCmd.Flags().String("api-key", "", "API key for the server, if required")
	watchCmd.Flags().String("kind", "build", "Job kind to watch: build or test")
}

func runWatch(cmd *cobra.Command, args []string) error {
	baseURL, _ := cmd.Flags().GetString("server")
	apiKey, _ := cmd.Flags().GetString("api-key")
	kind, _ := cmd.Flags().GetString("kind")

	if kind != "build" && kind != "test" {
		return fmt.Errorf("invalid kind %q: must be build or test", kind)
	}

	model := tui.New(baseURL, apiKey, kind, args[0])

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch error: %w", err)
	}

	return nil
}
