package xcodebuild

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// buildDirMarker is the xcodebuild setting line that names the directory
// produced artifacts land in.
const buildDirMarker = "BUILD_DIR = "

// exitCodeUnknown is the sentinel reported when the real exit code cannot be
// observed.
const exitCodeUnknown = -1

// Output is the final result of one tool invocation.
type Output struct {
	Success  bool
	ExitCode int
	Logs     []string
	BuildDir string // artifact directory, empty when the tool never reported one
}

// Runner spawns the external build tool and drains its output line by line.
type Runner struct {
	Tool   string // executable name, normally "xcodebuild"
	Logger *slog.Logger
}

// NewRunner creates a Runner for the given tool executable.
func NewRunner(tool string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Tool: tool, Logger: logger}
}

// Run executes the tool with args, invoking sink for every output line in
// arrival order. Both stdout and stderr are drained concurrently; the
// interleaving between the two streams is best-effort. Lines are also
// accumulated into the returned Output. A spawn failure is returned as an
// error with no Output; once the process has started, its real exit status is
// always reflected in the Output, even if one stream errors mid-read.
func (r *Runner) Run(ctx context.Context, args []string, sink func(string)) (*Output, error) {
	cmd := exec.CommandContext(ctx, r.Tool, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stderr: %w", err)
	}

	r.Logger.Info("running external tool", "tool", r.Tool, "args", strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", r.Tool, err)
	}

	var (
		mu       sync.Mutex
		logs     []string
		buildDir string
	)

	consume := func(line string) {
		mu.Lock()
		if i := strings.Index(line, buildDirMarker); i >= 0 {
			buildDir = strings.TrimSpace(line[i+len(buildDirMarker):])
		}
		logs = append(logs, line)
		mu.Unlock()
		sink(line)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go r.drain(&wg, stdout, "stdout", consume)
	go r.drain(&wg, stderr, "stderr", consume)
	wg.Wait()

	err = cmd.Wait()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = exitCodeUnknown
		}
	}

	return &Output{
		Success:  err == nil,
		ExitCode: exitCode,
		Logs:     logs,
		BuildDir: buildDir,
	}, nil
}

// drain reads one stream line by line until EOF or a read error. An error on
// one stream never stops the other; the process's exit status is still
// collected by the caller.
func (r *Runner) drain(wg *sync.WaitGroup, stream io.Reader, name string, consume func(string)) {
	defer wg.Done()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		consume(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		r.Logger.Warn("error reading tool output", "stream", name, "error", err)
	}
}
