// Package history persists a summary of every finished job, so the in-memory
// registry can evict old records without losing the fact that a job ran.
package history

import (
	"time"
)

// Store defines the interface for persisting and retrieving finished jobs.
type Store interface {
	// Save persists a finished job record.
	Save(rec *Record) error

	// Get retrieves a record by job ID.
	Get(jobID string) (*Record, error)

	// List retrieves the most recent records, newest first, up to limit.
	List(limit int) ([]*Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// Record is the durable summary of one finished job. The full log is not
// persisted; LogLines records how much output the job produced.
type Record struct {
	// JobID is the job's unique identifier.
	JobID string `json:"job_id"`

	// Kind is the job kind: "build" or "test".
	Kind string `json:"kind"`

	// Status is the terminal state name: success, failed, or cancelled.
	Status string `json:"status"`

	// Scheme is the build/test scheme the job targeted.
	Scheme string `json:"scheme"`

	// StartTime is when the job was accepted.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the job reached its terminal state.
	EndTime time.Time `json:"end_time"`

	// ExitCode is the external tool's exit status, when known.
	ExitCode *int `json:"exit_code,omitempty"`

	// Error is the failure summary, present only on failed jobs.
	Error string `json:"error,omitempty"`

	// Artifacts lists produced output locations, present only on success.
	Artifacts []string `json:"artifacts,omitempty"`

	// LogLines is the number of log lines the job produced.
	LogLines int `json:"log_lines"`
}

// Duration returns the time taken for this job.
func (r *Record) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
