package server

// BuildRequest is the body of POST /build.
type BuildRequest struct {
	// Path to the .xcodeproj file
	Project string `json:"project,omitempty"`
	// Path to the .xcworkspace file
	Workspace string `json:"workspace,omitempty"`
	// Build scheme
	Scheme string `json:"scheme"`
	// Build configuration (Debug, Release); defaults to the configured default
	Configuration string `json:"configuration,omitempty"`
	// Build destination (e.g. "platform=iOS Simulator,name=iPhone 15 Pro")
	Destination string `json:"destination,omitempty"`
	// Custom derived data path
	DerivedDataPath string `json:"derived_data_path,omitempty"`
	// Additional arguments forwarded verbatim
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// TestRequest is the body of POST /test.
type TestRequest struct {
	Project     string   `json:"project,omitempty"`
	Workspace   string   `json:"workspace,omitempty"`
	Scheme      string   `json:"scheme"`
	Destination string   `json:"destination,omitempty"`
	TestPlan    string   `json:"test_plan,omitempty"`
	OnlyTesting []string `json:"only_testing,omitempty"`
	SkipTesting []string `json:"skip_testing,omitempty"`
}

// JobStartedResponse is returned when a job is accepted.
type JobStartedResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	LogsURL string `json:"logs_url"`
}

// JobStatusResponse is the job record exposed to callers.
type JobStatusResponse struct {
	JobID string `json:"job_id"`
	// Current status: "running", "success", "failed", "cancelled"
	Status string `json:"status"`
	// Exit code, present only once terminal and known
	ExitCode *int `json:"exit_code,omitempty"`
	// Artifact locations, present only on success
	Artifacts []string `json:"artifacts,omitempty"`
	// Error summary, present only on failure
	Error string `json:"error,omitempty"`
	// Full log so far
	Logs []string `json:"logs"`
}

// TestResultResponse is the test-flavored status response, with counts
// parsed from the captured output.
type TestResultResponse struct {
	JobID   string   `json:"job_id"`
	Status  string   `json:"status"`
	Passed  *int     `json:"passed,omitempty"`
	Failed  *int     `json:"failed,omitempty"`
	Skipped *int     `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
	Logs    []string `json:"logs"`
}

// StatusResponse is the health check response.
type StatusResponse struct {
	Healthy      bool     `json:"healthy"`
	XcodeVersion string   `json:"xcode_version"`
	SDKs         []string `json:"sdks,omitempty"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
