// Package driver orchestrates the lifecycle of one job: validate the
// specification, register it, run the external tool, relay its output into
// the registry, and finalize the record from the tool's outcome.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aptove/xcbridge/internal/config"
	"github.com/aptove/xcbridge/internal/history"
	"github.com/aptove/xcbridge/internal/registry"
	"github.com/aptove/xcbridge/internal/xcodebuild"
)

// lineBufferSize bounds the hand-off queue between the process drain and the
// registry writer. When the queue is full, lines are dropped rather than
// stalling the drain.
const lineBufferSize = 100

// Kind identifies what a job runs.
type Kind string

const (
	KindBuild Kind = "build"
	KindTest  Kind = "test"
)

// ErrNotFound reports an unknown job id, or a cancel attempt on a job that is
// already terminal.
var ErrNotFound = errors.New("job not found")

// InvalidSpecError reports a malformed job specification. No job record is
// created for invalid input.
type InvalidSpecError struct {
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return "invalid request: " + e.Reason
}

// PathNotAllowedError reports a job specification referencing a path outside
// the configured allowed roots.
type PathNotAllowedError struct {
	Path string
}

func (e *PathNotAllowedError) Error() string {
	return "path not allowed: " + e.Path
}

// BuildSpec is a validated-on-entry build job specification.
type BuildSpec struct {
	Project         string
	Workspace       string
	Scheme          string
	Configuration   string
	Destination     string
	DerivedDataPath string
	ExtraArgs       []string
}

// TestSpec is a validated-on-entry test job specification.
type TestSpec struct {
	Project     string
	Workspace   string
	Scheme      string
	Destination string
	TestPlan    string
	OnlyTesting []string
	SkipTesting []string
}

// Driver starts and tracks jobs. Job bodies run as independent goroutines;
// the registry is the only thing they share.
type Driver struct {
	registry *registry.Registry
	history  history.Store // optional; nil disables persistence
	runner   *xcodebuild.Runner
	cfg      *config.Config
	logger   *slog.Logger
	ctx      context.Context
}

// New creates a Driver. ctx is the service lifetime; job processes are
// spawned under it.
func New(ctx context.Context, reg *registry.Registry, hist history.Store, runner *xcodebuild.Runner, cfg *config.Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		registry: reg,
		history:  hist,
		runner:   runner,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
	}
}

// StartBuild validates the spec, registers a new running job, and launches
// the build in the background. The returned id is valid immediately; the
// outcome becomes observable through the job's own state.
func (d *Driver) StartBuild(spec BuildSpec) (string, error) {
	root, err := d.checkProjectRoot(spec.Project, spec.Workspace, spec.Scheme)
	if err != nil {
		return "", err
	}

	if spec.Configuration == "" {
		spec.Configuration = d.cfg.Xcodebuild.DefaultConfiguration
	}

	params := xcodebuild.BuildParams{
		Project:         spec.Project,
		Workspace:       spec.Workspace,
		Scheme:          spec.Scheme,
		Configuration:   spec.Configuration,
		Destination:     spec.Destination,
		DerivedDataPath: spec.DerivedDataPath,
		ExtraArgs:       spec.ExtraArgs,
	}

	id := uuid.New().String()
	d.registry.Create(id)

	d.logger.Info("build job started",
		"job_id", id,
		"scheme", spec.Scheme,
		"root", root,
		"configuration", spec.Configuration)

	go d.execute(id, KindBuild, spec.Scheme, params.Args())

	return id, nil
}

// StartTest validates the spec, registers a new running job, and launches the
// test run in the background.
func (d *Driver) StartTest(spec TestSpec) (string, error) {
	root, err := d.checkProjectRoot(spec.Project, spec.Workspace, spec.Scheme)
	if err != nil {
		return "", err
	}

	params := xcodebuild.TestParams{
		Project:     spec.Project,
		Workspace:   spec.Workspace,
		Scheme:      spec.Scheme,
		Destination: spec.Destination,
		TestPlan:    spec.TestPlan,
		OnlyTesting: spec.OnlyTesting,
		SkipTesting: spec.SkipTesting,
	}

	id := uuid.New().String()
	d.registry.Create(id)

	d.logger.Info("test job started", "job_id", id, "scheme", spec.Scheme, "root", root)

	go d.execute(id, KindTest, spec.Scheme, params.Args())

	return id, nil
}

// checkProjectRoot enforces the request invariants shared by build and test
// jobs: a scheme, at least one of project/workspace, and the path allowlist
// policy.
func (d *Driver) checkProjectRoot(project, workspace, scheme string) (string, error) {
	if strings.TrimSpace(scheme) == "" {
		return "", &InvalidSpecError{Reason: "scheme must be specified"}
	}

	root := project
	if root == "" {
		root = workspace
	}
	if root == "" {
		return "", &InvalidSpecError{Reason: "either project or workspace must be specified"}
	}

	if !d.cfg.IsPathAllowed(root) {
		return "", &PathNotAllowedError{Path: root}
	}

	return root, nil
}

// execute runs one job body to completion. The line relay is decoupled from
// the process drain through a bounded channel so registry contention never
// backpressures the drain, which must keep consuming the OS pipe buffers.
func (d *Driver) execute(id string, kind Kind, scheme string, args []string) {
	started := time.Now()

	lines := make(chan string, lineBufferSize)
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		for line := range lines {
			d.registry.AppendLog(id, line)
		}
	}()

	sink := func(line string) {
		select {
		case lines <- line:
		default: // queue full, drop the line rather than stall the drain
		}
	}

	out, err := d.runner.Run(d.ctx, args, sink)

	close(lines)
	<-relayed

	switch {
	case err != nil:
		// The tool could not be started or communicated with at all.
		d.registry.Fail(id, err.Error(), nil)
		d.logger.Error("job startup failed", "job_id", id, "error", err)
	case out.Success:
		var artifacts []string
		if out.BuildDir != "" {
			artifacts = []string{out.BuildDir}
		}
		d.registry.Complete(id, artifacts)
		d.logger.Info("job succeeded", "job_id", id, "log_lines", len(out.Logs))
	default:
		code := out.ExitCode
		d.registry.Fail(id, failureSummary(kind, out.Logs), &code)
		d.logger.Info("job failed", "job_id", id, "exit_code", code)
	}

	d.persist(id, kind, scheme, started)
}

// persist writes the job's terminal summary to the history store. The
// registry state is re-read so a cancellation that won the race is recorded
// as such. Best-effort: persistence failure never affects the job record.
func (d *Driver) persist(id string, kind Kind, scheme string, started time.Time) {
	if d.history == nil {
		return
	}

	snap, ok := d.registry.Get(id)
	if !ok || !snap.State.Terminal() {
		return
	}

	rec := &history.Record{
		JobID:     id,
		Kind:      string(kind),
		Status:    string(snap.State),
		Scheme:    scheme,
		StartTime: started,
		EndTime:   time.Now(),
		ExitCode:  snap.ExitCode,
		Error:     snap.Error,
		Artifacts: snap.Artifacts,
		LogLines:  len(snap.Logs),
	}
	if err := d.history.Save(rec); err != nil {
		d.logger.Error("failed to persist job history", "job_id", id, "error", err)
	}
}

// Status returns a snapshot of the job record.
func (d *Driver) Status(id string) (registry.Snapshot, error) {
	snap, ok := d.registry.Get(id)
	if !ok {
		return registry.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Cancel flips a running job to cancelled. The underlying external process,
// if still running, is not terminated; its remaining output is dropped by the
// registry's append-only-while-running rule.
func (d *Driver) Cancel(id string) error {
	if !d.registry.Cancel(id) {
		return ErrNotFound
	}
	d.logger.Info("job cancelled", "job_id", id)
	return nil
}

// failureSummary scans the captured logs in reverse for the most recent line
// matching a failure marker for the job kind. Heuristic by nature; falls back
// to a generic summary when no marker line exists.
func failureSummary(kind Kind, logs []string) string {
	for i := len(logs) - 1; i >= 0; i-- {
		line := logs[i]
		if kind == KindTest && strings.Contains(line, "** TEST FAILED **") {
			return line
		}
		if strings.Contains(line, "error:") {
			return line
		}
	}
	if kind == KindTest {
		return "Tests failed"
	}
	return "Build failed"
}
