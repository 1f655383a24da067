package actions

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valetd/valet/internal/intent"
)

const maxReadBytes = 64 * 1024

// FileScope confines file actions to a set of base directories. An empty
// scope allows only the user's home directory.
type FileScope struct {
	BaseDirs []string
}

// NewFileScope builds a scope from configured base directories.
func NewFileScope(baseDirs []string) *FileScope {
	if len(baseDirs) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			baseDirs = []string{home}
		}
	}
	cleaned := make([]string, 0, len(baseDirs))
	for _, d := range baseDirs {
		if abs, err := filepath.Abs(d); err == nil {
			cleaned = append(cleaned, abs)
		}
	}
	return &FileScope{BaseDirs: cleaned}
}

// Resolve validates that path falls inside the scope and returns its
// absolute form.
func (s *FileScope) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("no path given")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	abs = filepath.Clean(abs)
	for _, base := range s.BaseDirs {
		if abs == base || strings.HasPrefix(abs, base+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("path %q is outside the allowed directories", path)
}

// ReadFile returns a file's contents, capped at maxReadBytes.
type ReadFile struct{ Scope *FileScope }

func (h *ReadFile) Name() intent.Action { return intent.ActionReadFile }

func (h *ReadFile) Execute(_ context.Context, req Request) (Result, error) {
	path, err := h.Scope.Resolve(GetString(req.Parameters, "file_path", ""))
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	content := string(data)
	truncated := ""
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes]
		truncated = "\n... (truncated)"
	}
	return Result{Text: fmt.Sprintf("%s\n\n%s%s", path, content, truncated)}, nil
}

// WriteFile creates or overwrites a file with the given content.
type WriteFile struct{ Scope *FileScope }

func (h *WriteFile) Name() intent.Action { return intent.ActionWriteFile }

func (h *WriteFile) Execute(_ context.Context, req Request) (Result, error) {
	path, err := h.Scope.Resolve(GetString(req.Parameters, "file_path", ""))
	if err != nil {
		return Result{}, err
	}
	content := GetString(req.Parameters, "content", "")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, fmt.Errorf("cannot create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Result{}, fmt.Errorf("cannot write %s: %w", path, err)
	}
	return Result{Text: fmt.Sprintf("Wrote %d bytes to %s", len(content), path)}, nil
}

// DeleteFile removes a single file (never a directory).
type DeleteFile struct{ Scope *FileScope }

func (h *DeleteFile) Name() intent.Action { return intent.ActionDeleteFile }

func (h *DeleteFile) Execute(_ context.Context, req Request) (Result, error) {
	path, err := h.Scope.Resolve(GetString(req.Parameters, "file_path", ""))
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("cannot delete %s: %w", path, err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory; refusing to delete", path)
	}
	if err := os.Remove(path); err != nil {
		return Result{}, fmt.Errorf("cannot delete %s: %w", path, err)
	}
	return Result{Text: fmt.Sprintf("Deleted %s", path)}, nil
}

// ListFiles lists a directory's entries.
type ListFiles struct{ Scope *FileScope }

func (h *ListFiles) Name() intent.Action { return intent.ActionListFiles }

func (h *ListFiles) Execute(_ context.Context, req Request) (Result, error) {
	dir, err := h.Scope.Resolve(GetString(req.Parameters, "directory", "."))
	if err != nil {
		return Result{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("cannot list %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return Result{Text: fmt.Sprintf("%s is empty", dir)}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", dir)
	for _, e := range entries {
		marker := ""
		if e.IsDir() {
			marker = "/"
		}
		fmt.Fprintf(&b, "  %s%s\n", e.Name(), marker)
	}
	return Result{Text: strings.TrimRight(b.String(), "\n")}, nil
}

// SearchFiles walks a directory tree matching file names by substring.
type SearchFiles struct{ Scope *FileScope }

func (h *SearchFiles) Name() intent.Action { return intent.ActionSearchFiles }

func (h *SearchFiles) Execute(ctx context.Context, req Request) (Result, error) {
	query := strings.ToLower(strings.TrimSpace(GetString(req.Parameters, "query", "")))
	if query == "" {
		return Result{}, fmt.Errorf("no search query given")
	}
	dir, err := h.Scope.Resolve(GetString(req.Parameters, "directory", "."))
	if err != nil {
		return Result{}, err
	}

	const maxMatches = 50
	var matches []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && strings.Contains(strings.ToLower(d.Name()), query) {
			matches = append(matches, path)
			if len(matches) >= maxMatches {
				return fs.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return Result{}, fmt.Errorf("search failed: %w", walkErr)
	}
	if len(matches) == 0 {
		return Result{Text: fmt.Sprintf("No files matching %q under %s", query, dir)}, nil
	}
	sort.Strings(matches)
	return Result{Text: fmt.Sprintf("Found %d file(s):\n  %s", len(matches), strings.Join(matches, "\n  "))}, nil
}

// SendFile validates a path and returns it as a file payload for the
// transport to deliver.
type SendFile struct{ Scope *FileScope }

func (h *SendFile) Name() intent.Action { return intent.ActionSendFile }

func (h *SendFile) Execute(_ context.Context, req Request) (Result, error) {
	path, err := h.Scope.Resolve(GetString(req.Parameters, "file_path", ""))
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Result{}, fmt.Errorf("file not found: %s", path)
	}
	return Result{
		Text:     fmt.Sprintf("Sending file: %s", filepath.Base(path)),
		FilePath: path,
	}, nil
}
