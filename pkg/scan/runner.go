package scan

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Per-call timeouts. A triggered rescan blocks until the radio finishes
// sweeping, so it gets far more headroom than reads of cached state.
const (
	TimeoutRescan    = 30 * time.Second
	TimeoutCached    = 8 * time.Second
	TimeoutScanDump  = 6 * time.Second
	TimeoutDevDetect = 3 * time.Second
	TimeoutLink      = 3 * time.Second
	TimeoutStation   = 3 * time.Second
	TimeoutSurvey    = 3 * time.Second
)

// ErrToolMissing reports that a required external tool is not installed.
// The scanner treats this as fatal for the tool's whole data source.
var ErrToolMissing = errors.New("tool not found")

// CommandRunner executes an external tool and returns its combined standard
// output. Implementations apply the timeout per call.
type CommandRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error)
}

// ExecRunner runs commands via the OS with exec.CommandContext.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by the local OS.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes name with args under a deadline derived from ctx.
func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", name, ErrToolMissing)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s %s: %w (stderr: %s)",
				name, strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(output), nil
}

// DetectManagedInterface finds the first managed-mode wireless interface
// via `iw dev`. The result should be cached by the caller; interfaces do
// not come and go mid-session.
func DetectManagedInterface(ctx context.Context, runner CommandRunner) (string, error) {
	output, err := runner.Run(ctx, TimeoutDevDetect, "iw", "dev")
	if err != nil {
		return "", err
	}

	var current string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Interface ") {
			current = strings.TrimPrefix(trimmed, "Interface ")
		} else if trimmed == "type managed" && current != "" {
			return current, nil
		}
	}
	return "", fmt.Errorf("no managed wireless interface found")
}
