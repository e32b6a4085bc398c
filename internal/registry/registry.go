// Package registry holds the in-memory store of job records. It is the single
// source of truth for job state: every transition goes through it, and readers
// only ever see point-in-time snapshots.
package registry

import (
	"sync"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StateRunning   State = "running"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateCancelled
}

// Snapshot is a point-in-time copy of a job record. Mutating a snapshot never
// affects the registry.
type Snapshot struct {
	ID        string
	State     State
	Logs      []string
	Artifacts []string
	Error     string
	ExitCode  *int
	CreatedAt time.Time
}

// record is the registry-internal representation of one job.
type record struct {
	state     State
	logs      []string
	artifacts []string
	errMsg    string
	exitCode  *int
	createdAt time.Time
}

// Registry is a concurrency-safe map of job id to job record. A single
// read/write lock guards all operations; writers are mutually exclusive,
// readers run concurrently.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*record
	order []string // insertion order, for oldest-first reclamation
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{jobs: make(map[string]*record)}
}

// Create inserts a new running record with empty logs. Callers always use
// fresh ids; creating the same id twice is not a supported path.
func (r *Registry) Create(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[id] = &record{state: StateRunning, createdAt: time.Now()}
	r.order = append(r.order, id)
}

// AppendLog appends a line to a running job's logs. Lines arriving after the
// job reached a terminal state are dropped: logs are frozen at completion.
func (r *Registry) AppendLog(id, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.jobs[id]; ok && rec.state == StateRunning {
		rec.logs = append(rec.logs, line)
	}
}

// Complete transitions a running job to success, carrying over its logs.
// No-op if the job is absent or already terminal.
func (r *Registry) Complete(id string, artifacts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.jobs[id]; ok && rec.state == StateRunning {
		rec.state = StateSuccess
		rec.artifacts = artifacts
	}
}

// Fail transitions a running job to failed, carrying over its logs. exitCode
// is nil when the external tool never produced one (startup failure).
// No-op if the job is absent or already terminal.
func (r *Registry) Fail(id, errMsg string, exitCode *int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.jobs[id]; ok && rec.state == StateRunning {
		rec.state = StateFailed
		rec.errMsg = errMsg
		rec.exitCode = exitCode
	}
}

// Cancel transitions a running job to cancelled and discards its logs.
// Returns false if the job is absent or already terminal, which callers
// surface as a not-found condition.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok || rec.state != StateRunning {
		return false
	}
	rec.state = StateCancelled
	rec.logs = nil
	return true
}

// Get returns a snapshot copy of the job record, or ok=false if absent.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Snapshot{}, false
	}

	snap := Snapshot{
		ID:        id,
		State:     rec.state,
		Logs:      append([]string(nil), rec.logs...),
		Artifacts: append([]string(nil), rec.artifacts...),
		Error:     rec.errMsg,
		CreatedAt: rec.createdAt,
	}
	if rec.exitCode != nil {
		code := *rec.exitCode
		snap.ExitCode = &code
	}
	return snap, true
}

// Len returns the number of records currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Reclaim evicts the oldest terminal records beyond maxTerminal, oldest first
// by insertion order. Running records are never evicted. Returns the number
// of records removed.
func (r *Registry) Reclaim(maxTerminal int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var terminal []string
	for _, id := range r.order {
		if rec, ok := r.jobs[id]; ok && rec.state.Terminal() {
			terminal = append(terminal, id)
		}
	}

	excess := len(terminal) - maxTerminal
	if excess <= 0 {
		return 0
	}

	evicted := make(map[string]bool, excess)
	for _, id := range terminal[:excess] {
		delete(r.jobs, id)
		evicted[id] = true
	}

	kept := r.order[:0]
	for _, id := range r.order {
		if !evicted[id] {
			kept = append(kept, id)
		}
	}
	r.order = kept

	return excess
}
