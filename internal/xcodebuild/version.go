package xcodebuild

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Version returns the first line of `xcodebuild -version`, e.g. "Xcode 15.0".
// An error here means the toolchain is unusable; the service treats that as
// fatal at startup.
func (r *Runner) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, r.Tool, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s not found or not working: %w", r.Tool, err)
	}

	line, _, _ := strings.Cut(string(out), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		line = "Unknown"
	}
	return line, nil
}

// ListSDKs parses `xcodebuild -showsdks` into the available -sdk identifiers.
func (r *Runner) ListSDKs(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, r.Tool, "-showsdks").Output()
	if err != nil {
		return nil, fmt.Errorf("list sdks: %w", err)
	}

	var sdks []string
	for _, line := range strings.Split(string(out), "\n") {
		if _, rest, ok := strings.Cut(line, "-sdk"); ok {
			if sdk := strings.TrimSpace(rest); sdk != "" {
				sdks = append(sdks, sdk)
			}
		}
	}
	return sdks, nil
}
