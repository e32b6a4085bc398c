package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/aptove/xcbridge/internal/driver"
	"github.com/aptove/xcbridge/internal/registry"
)

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Healthy:      true,
		XcodeVersion: s.xcodeVersion,
	}

	if s.toolchain != nil {
		sdks, err := s.toolchain.ListSDKs(r.Context())
		if err != nil {
			s.logger.Warn("failed to list SDKs", "error", err)
		} else {
			resp.SDKs = sdks
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleStartBuild handles POST /build.
func (s *Server) handleStartBuild(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}

	id, err := s.jobs.StartBuild(driver.BuildSpec{
		Project:         req.Project,
		Workspace:       req.Workspace,
		Scheme:          req.Scheme,
		Configuration:   req.Configuration,
		Destination:     req.Destination,
		DerivedDataPath: req.DerivedDataPath,
		ExtraArgs:       req.ExtraArgs,
	})
	if err != nil {
		s.writeDriverError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, JobStartedResponse{
		JobID:   id,
		Status:  string(registry.StateRunning),
		LogsURL: "/build/" + id + "/logs",
	})
}

// handleStartTest handles POST /test.
func (s *Server) handleStartTest(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}

	id, err := s.jobs.StartTest(driver.TestSpec{
		Project:     req.Project,
		Workspace:   req.Workspace,
		Scheme:      req.Scheme,
		Destination: req.Destination,
		TestPlan:    req.TestPlan,
		OnlyTesting: req.OnlyTesting,
		SkipTesting: req.SkipTesting,
	})
	if err != nil {
		s.writeDriverError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, JobStartedResponse{
		JobID:   id,
		Status:  string(registry.StateRunning),
		LogsURL: "/test/" + id + "/logs",
	})
}

// handleGetBuild handles GET /build/{id}.
func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	snap, err := s.jobs.Status(r.PathValue("id"))
	if err != nil {
		s.writeDriverError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, JobStatusResponse{
		JobID:     snap.ID,
		Status:    string(snap.State),
		ExitCode:  snap.ExitCode,
		Artifacts: snap.Artifacts,
		Error:     snap.Error,
		Logs:      snap.Logs,
	})
}

// handleGetTest handles GET /test/{id}. Same record as a build, plus test
// counts parsed from the captured output once available.
func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.jobs.Status(r.PathValue("id"))
	if err != nil {
		s.writeDriverError(w, err)
		return
	}

	resp := TestResultResponse{
		JobID:  snap.ID,
		Status: string(snap.State),
		Error:  snap.Error,
		Logs:   snap.Logs,
	}
	if passed, failed, skipped, ok := parseTestCounts(snap.Logs); ok {
		resp.Passed = &passed
		resp.Failed = &failed
		resp.Skipped = &skipped
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleCancel handles DELETE /build/{id} and DELETE /test/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.jobs.Cancel(id); err != nil {
		s.writeDriverError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"job_id": id,
		"status": string(registry.StateCancelled),
	})
}

// handleListRuns handles GET /runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "job_not_found", "job history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(limit)
	if err != nil {
		s.logger.Error("failed to list job history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "failed to list job history")
		return
	}

	s.writeJSON(w, http.StatusOK, records)
}

// handleGetRun handles GET /runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "job_not_found", "job history is not enabled")
		return
	}

	rec, err := s.history.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

// writeDriverError maps driver errors onto HTTP status codes and error kinds.
func (s *Server) writeDriverError(w http.ResponseWriter, err error) {
	var invalid *driver.InvalidSpecError
	var denied *driver.PathNotAllowedError

	switch {
	case errors.As(err, &invalid):
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &denied):
		s.writeError(w, http.StatusForbidden, "path_not_allowed", err.Error())
	case errors.Is(err, driver.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job_not_found", err.Error())
	default:
		s.logger.Error("unexpected driver error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// testSummaryRe matches xcodebuild's final test tally line, e.g.
// "Executed 12 tests, with 2 failures (0 unexpected) in 3.456 seconds".
var testSummaryRe = regexp.MustCompile(`Executed (\d+) tests?, with (\d+) failures?`)

var skippedRe = regexp.MustCompile(`(\d+) tests? skipped`)

// parseTestCounts scans the captured output in reverse for the final test
// tally. Returns ok=false when no tally line is present, as for a job that
// failed before any tests ran.
func parseTestCounts(logs []string) (passed, failed, skipped int, ok bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		m := testSummaryRe.FindStringSubmatch(logs[i])
		if m == nil {
			continue
		}

		total, err1 := strconv.Atoi(m[1])
		failures, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}

		if sm := skippedRe.FindStringSubmatch(logs[i]); sm != nil {
			skipped, _ = strconv.Atoi(sm[1])
		}

		return total - failures - skipped, failures, skipped, true
	}
	return 0, 0, 0, false
}
