package actions

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/valetd/valet/internal/intent"
)

// OpenApp launches one of a configured set of applications. The whitelist
// maps friendly names to argv vectors.
type OpenApp struct {
	Apps map[string][]string
}

// DefaultApps is the built-in application whitelist.
func DefaultApps() map[string][]string {
	return map[string][]string{
		"firefox":    {"firefox"},
		"chrome":     {"google-chrome"},
		"terminal":   {"gnome-terminal"},
		"files":      {"nautilus"},
		"calculator": {"gnome-calculator"},
		"editor":     {"gedit"},
	}
}

func (h *OpenApp) Name() intent.Action { return intent.ActionOpenApp }

func (h *OpenApp) Execute(_ context.Context, req Request) (Result, error) {
	name := strings.ToLower(strings.TrimSpace(GetString(req.Parameters, "app_name", "")))
	if name == "" {
		return Result{}, fmt.Errorf("no application name given")
	}
	argv, ok := h.Apps[name]
	if !ok || len(argv) == 0 {
		known := make([]string, 0, len(h.Apps))
		for k := range h.Apps {
			known = append(known, k)
		}
		sort.Strings(known)
		return Result{}, fmt.Errorf("unknown application %q; available: %s", name, strings.Join(known, ", "))
	}
	// Detached start; the app outlives the request.
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to launch %s: %w", name, err)
	}
	go cmd.Wait()
	return Result{Text: fmt.Sprintf("Launched %s", name)}, nil
}

// RunScript runs one of a configured set of named scripts.
type RunScript struct {
	Scripts map[string]string
}

func (h *RunScript) Name() intent.Action { return intent.ActionRunScript }

func (h *RunScript) Execute(ctx context.Context, req Request) (Result, error) {
	name := strings.TrimSpace(GetString(req.Parameters, "script_name", ""))
	if name == "" {
		return Result{}, fmt.Errorf("no script name given")
	}
	path, ok := h.Scripts[name]
	if !ok {
		known := make([]string, 0, len(h.Scripts))
		for k := range h.Scripts {
			known = append(known, k)
		}
		sort.Strings(known)
		if len(known) == 0 {
			return Result{}, fmt.Errorf("no scripts configured")
		}
		return Result{}, fmt.Errorf("unknown script %q; available: %s", name, strings.Join(known, ", "))
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	output, err := exec.CommandContext(runCtx, path).CombinedOutput()
	text := strings.TrimSpace(string(output))
	if len(text) > maxOutputBytes {
		text = text[:maxOutputBytes] + "\n... (output truncated)"
	}
	if err != nil {
		return Result{}, fmt.Errorf("script %s failed: %w\n%s", name, err, text)
	}
	if text == "" {
		text = fmt.Sprintf("Script %s completed", name)
	}
	return Result{Text: text}, nil
}

// Lock locks the desktop session.
type Lock struct{}

func (h *Lock) Name() intent.Action { return intent.ActionLock }

func (h *Lock) Execute(ctx context.Context, _ Request) (Result, error) {
	// loginctl works across desktop environments; xdg-screensaver is the
	// fallback on older sessions.
	for _, argv := range [][]string{
		{"loginctl", "lock-session"},
		{"xdg-screensaver", "lock"},
	} {
		if err := exec.CommandContext(ctx, argv[0], argv[1:]...).Run(); err == nil {
			return Result{Text: "Screen locked"}, nil
		}
	}
	return Result{}, fmt.Errorf("no working lock mechanism found")
}

// Volume sets the master volume to a percentage via amixer.
type Volume struct{}

func (h *Volume) Name() intent.Action { return intent.ActionVolume }

func (h *Volume) Execute(ctx context.Context, req Request) (Result, error) {
	level := GetInt(req.Parameters, "level", -1)
	if level < 0 || level > 100 {
		return Result{}, fmt.Errorf("volume level must be between 0 and 100")
	}
	arg := strconv.Itoa(level) + "%"
	if err := exec.CommandContext(ctx, "amixer", "set", "Master", arg).Run(); err != nil {
		return Result{}, fmt.Errorf("failed to set volume: %w", err)
	}
	return Result{Text: fmt.Sprintf("Volume set to %d%%", level)}, nil
}

// Power shuts down or reboots the host via systemctl.
type Power struct{}

func (h *Power) Name() intent.Action { return intent.ActionPower }

func (h *Power) Execute(ctx context.Context, req Request) (Result, error) {
	mode := strings.ToLower(strings.TrimSpace(GetString(req.Parameters, "mode", "")))
	var verb string
	switch mode {
	case "shutdown", "poweroff", "off":
		verb = "poweroff"
	case "reboot", "restart":
		verb = "reboot"
	case "suspend", "sleep":
		verb = "suspend"
	default:
		return Result{}, fmt.Errorf("unknown power mode %q; use shutdown, reboot, or suspend", mode)
	}
	if err := exec.CommandContext(ctx, "systemctl", verb).Run(); err != nil {
		return Result{}, fmt.Errorf("systemctl %s failed: %w", verb, err)
	}
	return Result{Text: fmt.Sprintf("Executing %s", verb)}, nil
}
