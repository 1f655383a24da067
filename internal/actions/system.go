package actions

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/valetd/valet/internal/intent"
)

const (
	commandTimeout = 30 * time.Second
	maxOutputBytes = 4000
)

// RunCommand executes an arbitrary shell command with a timeout and a
// bounded output size.
type RunCommand struct{}

func (h *RunCommand) Name() intent.Action { return intent.ActionRunCommand }

func (h *RunCommand) Execute(ctx context.Context, req Request) (Result, error) {
	command := strings.TrimSpace(GetString(req.Parameters, "command", ""))
	if command == "" {
		return Result{}, fmt.Errorf("no command given")
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(output))
	if len(text) > maxOutputBytes {
		text = text[:maxOutputBytes] + "\n... (output truncated)"
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, fmt.Errorf("command timed out after %s", commandTimeout)
	}
	if err != nil {
		if text == "" {
			return Result{}, fmt.Errorf("command failed: %w", err)
		}
		return Result{}, fmt.Errorf("command failed: %w\n%s", err, text)
	}
	if text == "" {
		text = "(no output)"
	}
	return Result{Text: text}, nil
}

// KillProcess terminates processes matching a name via pkill.
type KillProcess struct{}

func (h *KillProcess) Name() intent.Action { return intent.ActionKillProcess }

func (h *KillProcess) Execute(ctx context.Context, req Request) (Result, error) {
	name := strings.TrimSpace(GetString(req.Parameters, "process_name", ""))
	if name == "" {
		return Result{}, fmt.Errorf("no process name given")
	}
	// pkill -f matches the full command line, which is what users mean
	// when they name an application rather than a binary.
	cmd := exec.CommandContext(ctx, "pkill", "-f", name)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return Result{}, fmt.Errorf("no process matching %q found", name)
		}
		return Result{}, fmt.Errorf("failed to kill %q: %w", name, err)
	}
	return Result{Text: fmt.Sprintf("Killed processes matching %q", name)}, nil
}

// SystemInfo reports hostname, kernel, uptime, and disk usage.
type SystemInfo struct{}

func (h *SystemInfo) Name() intent.Action { return intent.ActionSystemInfo }

func (h *SystemInfo) Execute(ctx context.Context, _ Request) (Result, error) {
	var b strings.Builder

	if host, err := os.Hostname(); err == nil {
		fmt.Fprintf(&b, "Host: %s\n", host)
	}
	for _, probe := range []struct {
		label string
		argv  []string
	}{
		{"Kernel", []string{"uname", "-sr"}},
		{"Uptime", []string{"uptime", "-p"}},
		{"Disk", []string{"df", "-h", "/"}},
	} {
		out, err := exec.CommandContext(ctx, probe.argv[0], probe.argv[1:]...).Output()
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", probe.label, strings.TrimSpace(string(out)))
	}

	text := strings.TrimRight(b.String(), "\n")
	if text == "" {
		return Result{}, fmt.Errorf("could not collect system information")
	}
	return Result{Text: text}, nil
}
