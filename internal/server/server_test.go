package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptove/xcbridge/internal/driver"
	"github.com/aptove/xcbridge/internal/history"
	"github.com/aptove/xcbridge/internal/registry"
)

// fakeJobs implements JobService on top of a real registry so tests control
// job lifecycles directly.
type fakeJobs struct {
	reg       *registry.Registry
	nextID    string
	startErr  error
	lastBuild driver.BuildSpec
	lastTest  driver.TestSpec
}

func (f *fakeJobs) StartBuild(spec driver.BuildSpec) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.lastBuild = spec
	f.reg.Create(f.nextID)
	return f.nextID, nil
}

func (f *fakeJobs) StartTest(spec driver.TestSpec) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.lastTest = spec
	f.reg.Create(f.nextID)
	return f.nextID, nil
}

func (f *fakeJobs) Status(id string) (registry.Snapshot, error) {
	snap, ok := f.reg.Get(id)
	if !ok {
		return registry.Snapshot{}, driver.ErrNotFound
	}
	return snap, nil
}

func (f *fakeJobs) Cancel(id string) error {
	if !f.reg.Cancel(id) {
		return driver.ErrNotFound
	}
	return nil
}

func newTestServer(t *testing.T, jobs *fakeJobs, opts Options) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := New("127.0.0.1:0", jobs, opts, logger)
	s.streamInterval = 5 * time.Millisecond
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStartBuildEndpoint(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New(), nextID: "job-1"}
	s := newTestServer(t, jobs, Options{})

	rec := doJSON(t, s, http.MethodPost, "/build", BuildRequest{
		Project: "/work/App.xcodeproj",
		Scheme:  "App",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp JobStartedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, "/build/job-1/logs", resp.LogsURL)

	assert.Equal(t, "/work/App.xcodeproj", jobs.lastBuild.Project)
	assert.Equal(t, "App", jobs.lastBuild.Scheme)
}

func TestStartBuildEndpoint_BadJSON(t *testing.T) {
	s := newTestServer(t, &fakeJobs{reg: registry.New()}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/build", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "invalid_request", resp.Error)
}

func TestStartBuildEndpoint_DriverErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{
			name:     "invalid spec",
			err:      &driver.InvalidSpecError{Reason: "scheme must be specified"},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_request",
		},
		{
			name:     "path not allowed",
			err:      &driver.PathNotAllowedError{Path: "/etc"},
			wantCode: http.StatusForbidden,
			wantKind: "path_not_allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{reg: registry.New(), startErr: tt.err}
			s := newTestServer(t, jobs, Options{})

			rec := doJSON(t, s, http.MethodPost, "/build", BuildRequest{Scheme: "App"})
			require.Equal(t, tt.wantCode, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantKind, resp.Error)
		})
	}
}

func TestGetBuildEndpoint(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New()}
	s := newTestServer(t, jobs, Options{})

	jobs.reg.Create("job-1")
	jobs.reg.AppendLog("job-1", "compiling")
	jobs.reg.Complete("job-1", []string{"/tmp/products"})

	rec := doJSON(t, s, http.MethodGet, "/build/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, []string{"/tmp/products"}, resp.Artifacts)
	assert.Equal(t, []string{"compiling"}, resp.Logs)
	assert.Nil(t, resp.ExitCode)
}

func TestGetBuildEndpoint_NotFound(t *testing.T) {
	s := newTestServer(t, &fakeJobs{reg: registry.New()}, Options{})

	rec := doJSON(t, s, http.MethodGet, "/build/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job_not_found", resp.Error)
}

func TestGetTestEndpoint_Counts(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New()}
	s := newTestServer(t, jobs, Options{})

	code := 65
	jobs.reg.Create("job-t")
	jobs.reg.AppendLog("job-t", "Test Suite 'AppTests' started")
	jobs.reg.AppendLog("job-t", "Executed 10 tests, with 2 failures (0 unexpected) in 1.2 seconds")
	jobs.reg.Fail("job-t", "** TEST FAILED **", &code)

	rec := doJSON(t, s, http.MethodGet, "/test/job-t", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TestResultResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "failed", resp.Status)
	require.NotNil(t, resp.Passed)
	require.NotNil(t, resp.Failed)
	assert.Equal(t, 8, *resp.Passed)
	assert.Equal(t, 2, *resp.Failed)
}

func TestCancelEndpoint(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New()}
	s := newTestServer(t, jobs, Options{})

	jobs.reg.Create("job-1")

	rec := doJSON(t, s, http.MethodDelete, "/build/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	snap, ok := jobs.reg.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, registry.StateCancelled, snap.State)

	// A second cancel reports not-found, matching terminal-state semantics.
	rec = doJSON(t, s, http.MethodDelete, "/build/job-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New()}
	s := newTestServer(t, jobs, Options{APIKey: "s3cret"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeJobs{reg: registry.New()}, Options{
		XcodeVersion: "Xcode 16.2",
	})

	rec := doJSON(t, s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Healthy)
	assert.Equal(t, "Xcode 16.2", resp.XcodeVersion)
}

func TestRunsEndpoints(t *testing.T) {
	store, err := history.NewJSONStore(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	defer store.Close()

	code := 0
	require.NoError(t, store.Save(&history.Record{
		JobID:     "job-1",
		Kind:      "build",
		Status:    "success",
		Scheme:    "App",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Minute),
		ExitCode:  &code,
	}))

	s := newTestServer(t, &fakeJobs{reg: registry.New()}, Options{History: store})

	rec := doJSON(t, s, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []*history.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "job-1", list[0].JobID)

	rec = doJSON(t, s, http.MethodGet, "/runs/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/runs?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsEndpoints_HistoryDisabled(t *testing.T) {
	s := newTestServer(t, &fakeJobs{reg: registry.New()}, Options{})

	rec := doJSON(t, s, http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseTestCounts(t *testing.T) {
	tests := []struct {
		name                          string
		logs                          []string
		wantPassed, wantFail, wantSkp int
		wantOK                        bool
	}{
		{
			name:       "plain tally",
			logs:       []string{"Executed 10 tests, with 2 failures (0 unexpected) in 1.2 seconds"},
			wantPassed: 8, wantFail: 2, wantOK: true,
		},
		{
			name:       "singular forms",
			logs:       []string{"Executed 1 test, with 1 failure (0 unexpected) in 0.1 seconds"},
			wantPassed: 0, wantFail: 1, wantOK: true,
		},
		{
			name:       "last tally wins",
			logs:       []string{"Executed 3 tests, with 0 failures (0 unexpected)", "Executed 9 tests, with 1 failure (0 unexpected)"},
			wantPassed: 8, wantFail: 1, wantOK: true,
		},
		{
			name:   "no tally",
			logs:   []string{"xcodebuild: error: scheme not found"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, failed, skipped, ok := parseTestCounts(tt.logs)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantPassed, passed)
				assert.Equal(t, tt.wantFail, failed)
				assert.Equal(t, tt.wantSkp, skipped)
			}
		})
	}
}
