package actions

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/valetd/valet/internal/intent"
)

// Screenshot captures the screen to a PNG in Dir, trying the available
// capture tools in order.
type Screenshot struct {
	Dir string
}

func (h *Screenshot) Name() intent.Action { return intent.ActionScreenshot }

func (h *Screenshot) Execute(ctx context.Context, _ Request) (Result, error) {
	dir := h.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("cannot create screenshot directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405")))

	tools := [][]string{
		{"gnome-screenshot", "-f", path},
		{"scrot", path},
		{"import", "-window", "root", path},
	}
	var lastErr error
	for _, argv := range tools {
		if _, err := exec.LookPath(argv[0]); err != nil {
			lastErr = err
			continue
		}
		if err := exec.CommandContext(ctx, argv[0], argv[1:]...).Run(); err != nil {
			lastErr = err
			continue
		}
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return Result{Text: "Screenshot captured", FilePath: path}, nil
		}
	}
	if lastErr != nil {
		return Result{}, fmt.Errorf("screenshot failed: %w", lastErr)
	}
	return Result{}, fmt.Errorf("no screenshot tool available")
}
