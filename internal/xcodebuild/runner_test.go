package xcodebuild

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeScript writes an executable shell script and returns its path, so the
// runner can be exercised against a real child process without xcodebuild.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestRun_CapturesBothStreams(t *testing.T) {
	script := writeScript(t, `
echo "out one"
echo "err one" >&2
echo "out two"
`)

	r := NewRunner(script, testLogger())

	var mu sync.Mutex
	var streamed []string
	out, err := r.Run(context.Background(), nil, func(line string) {
		mu.Lock()
		streamed = append(streamed, line)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !out.Success {
		t.Error("Success = false, want true")
	}
	if out.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", out.ExitCode)
	}
	if len(out.Logs) != 3 {
		t.Fatalf("len(Logs) = %d, want 3: %v", len(out.Logs), out.Logs)
	}
	if len(streamed) != len(out.Logs) {
		t.Errorf("sink saw %d lines, accumulated %d", len(streamed), len(out.Logs))
	}

	// stdout ordering is preserved within the stream.
	var stdoutLines []string
	for _, l := range out.Logs {
		if strings.HasPrefix(l, "out") {
			stdoutLines = append(stdoutLines, l)
		}
	}
	if len(stdoutLines) != 2 || stdoutLines[0] != "out one" || stdoutLines[1] != "out two" {
		t.Errorf("stdout lines = %v, want [out one, out two]", stdoutLines)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	script := writeScript(t, `
echo "error: build failed"
exit 65
`)

	r := NewRunner(script, testLogger())
	out, err := r.Run(context.Background(), nil, func(string) {})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if out.Success {
		t.Error("Success = true, want false")
	}
	if out.ExitCode != 65 {
		t.Errorf("ExitCode = %d, want 65", out.ExitCode)
	}
	if len(out.Logs) != 1 || out.Logs[0] != "error: build failed" {
		t.Errorf("Logs = %v", out.Logs)
	}
}

func TestRun_BuildDirMarker(t *testing.T) {
	script := writeScript(t, `
echo "    BUILD_DIR = /tmp/DerivedData/App/Build/Products"
echo "done"
`)

	r := NewRunner(script, testLogger())
	out, err := r.Run(context.Background(), nil, func(string) {})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if out.BuildDir != "/tmp/DerivedData/App/Build/Products" {
		t.Errorf("BuildDir = %q", out.BuildDir)
	}
}

func TestRun_SpawnFailure(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "does-not-exist"), testLogger())

	out, err := r.Run(context.Background(), nil, func(string) {})
	if err == nil {
		t.Fatal("Run() error = nil, want spawn failure")
	}
	if out != nil {
		t.Errorf("Output = %+v, want nil on spawn failure", out)
	}
}

func TestRun_ArgsForwarded(t *testing.T) {
	script := writeScript(t, `
for a in "$@"; do echo "arg:$a"; done
`)

	r := NewRunner(script, testLogger())
	out, err := r.Run(context.Background(), []string{"-scheme", "App"}, func(string) {})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"arg:-scheme", "arg:App"}
	if len(out.Logs) != 2 || out.Logs[0] != want[0] || out.Logs[1] != want[1] {
		t.Errorf("Logs = %v, want %v", out.Logs, want)
	}
}

func TestVersion(t *testing.T) {
	script := writeScript(t, `
if [ "$1" = "-version" ]; then
  echo "Xcode 15.0"
  echo "Build version 15A240d"
fi
`)

	r := NewRunner(script, testLogger())
	v, err := r.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "Xcode 15.0" {
		t.Errorf("Version() = %q, want Xcode 15.0", v)
	}
}

func TestVersion_ToolMissing(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "no-such-tool"), testLogger())
	if _, err := r.Version(context.Background()); err == nil {
		t.Error("Version() error = nil, want failure")
	}
}

func TestListSDKs(t *testing.T) {
	script := writeScript(t, `
if [ "$1" = "-showsdks" ]; then
  echo "iOS SDKs:"
  echo "        iOS 17.0                        -sdk iphoneos17.0"
  echo "iOS Simulator SDKs:"
  echo "        Simulator - iOS 17.0            -sdk iphonesimulator17.0"
fi
`)

	r := NewRunner(script, testLogger())
	sdks, err := r.ListSDKs(context.Background())
	if err != nil {
		t.Fatalf("ListSDKs() error = %v", err)
	}

	want := []string{"iphoneos17.0", "iphonesimulator17.0"}
	if len(sdks) != 2 || sdks[0] != want[0] || sdks[1] != want[1] {
		t.Errorf("ListSDKs() = %v, want %v", sdks, want)
	}
}
