package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptove/xcbridge/internal/registry"
)

func TestJobLogsStream(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New()}
	s := newTestServer(t, jobs, Options{})

	jobs.reg.Create("job-1")
	jobs.reg.AppendLog("job-1", "line one")

	// Feed lines while the handler is polling, then finish the job.
	go func() {
		time.Sleep(20 * time.Millisecond)
		jobs.reg.AppendLog("job-1", "line two")
		time.Sleep(20 * time.Millisecond)
		jobs.reg.AppendLog("job-1", "line three")
		jobs.reg.Complete("job-1", nil)
	}()

	req := httptest.NewRequest(http.MethodGet, "/build/job-1/logs", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Handler().ServeHTTP(rec, req)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream handler did not return after job completion")
	}

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()

	// Each line delivered exactly once, in order.
	for _, line := range []string{"line one", "line two", "line three"} {
		assert.Equal(t, 1, strings.Count(body, "data: "+line+"\n\n"), "line %q", line)
	}
	assert.Less(t, strings.Index(body, "line one"), strings.Index(body, "line two"))
	assert.Less(t, strings.Index(body, "line two"), strings.Index(body, "line three"))

	// One completion event carrying the terminal status, after all lines.
	assert.Equal(t, 1, strings.Count(body, "event: complete\ndata: success\n\n"))
	assert.Less(t, strings.Index(body, "line three"), strings.Index(body, "event: complete"))
}

func TestJobLogsStream_CancelledStatus(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New()}
	s := newTestServer(t, jobs, Options{})

	jobs.reg.Create("job-1")
	jobs.reg.Cancel("job-1")

	rec := doJSON(t, s, http.MethodGet, "/build/job-1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: complete\ndata: cancelled\n\n")
}

func TestJobLogsStream_UnknownJob(t *testing.T) {
	s := newTestServer(t, &fakeJobs{reg: registry.New()}, Options{})

	rec := doJSON(t, s, http.MethodGet, "/build/nope/logs", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestJobLogsStream_ClientDisconnect(t *testing.T) {
	jobs := &fakeJobs{reg: registry.New()}
	s := newTestServer(t, jobs, Options{})

	jobs.reg.Create("job-1")

	req := httptest.NewRequest(http.MethodGet, "/build/job-1/logs", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Handler().ServeHTTP(rec, req)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after client disconnect")
	}
}
