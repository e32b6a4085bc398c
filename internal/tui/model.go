package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aptove/xcbridge/internal/server"
)

// pollInterval paces the status refresh against the server.
const pollInterval = 500 * time.Millisecond

// Model holds the state for the job watch view.
type Model struct {
	baseURL string
	apiKey  string
	jobID   string
	kind    string // "build" or "test"
	client  *http.Client

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	status     server.JobStatusResponse
	fetched    bool
	lastUpdate time.Time

	width        int
	height       int
	quitting     bool
	errorMessage string
}

// New creates a watch model for one job.
func New(baseURL, apiKey, kind, jobID string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusRunningStyle

	return Model{
		baseURL: baseURL,
		apiKey:  apiKey,
		jobID:   jobID,
		kind:    kind,
		client:  &http.Client{Timeout: 5 * time.Second},
		spinner: sp,
	}
}

// Init initializes the model (required by Bubbletea).
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetchCmd(),
		tea.EnterAltScreen,
	)
}

// tickMsg is sent on a regular interval to trigger the next status fetch.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// statusMsg carries a freshly fetched job record.
type statusMsg server.JobStatusResponse

// fetchCmd fetches the job record from the server.
func (m Model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet,
			fmt.Sprintf("%s/%s/%s", m.baseURL, m.kind, m.jobID), nil)
		if err != nil {
			return err
		}
		if m.apiKey != "" {
			req.Header.Set("X-API-Key", m.apiKey)
		}

		resp, err := m.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var apiErr server.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
				return fmt.Errorf("%s", apiErr.Message)
			}
			return fmt.Errorf("server returned %s", resp.Status)
		}

		var status server.JobStatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return err
		}
		return statusMsg(status)
	}
}

// terminal reports whether the watched job has finished.
func (m Model) terminal() bool {
	return m.fetched && m.status.Status != "running"
}

// Quitting returns true if the user has requested to quit.
func (m Model) Quitting() bool {
	return m.quitting
}
