package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/valetd/valet/internal/intent"
	"github.com/valetd/valet/internal/store"
)

// SaveNote stores a note for the requesting user.
type SaveNote struct {
	Store *store.Service
}

func (h *SaveNote) Name() intent.Action { return intent.ActionSaveNote }

func (h *SaveNote) Execute(_ context.Context, req Request) (Result, error) {
	content := strings.TrimSpace(GetString(req.Parameters, "content", ""))
	if content == "" {
		return Result{}, fmt.Errorf("nothing to save")
	}
	title := strings.TrimSpace(GetString(req.Parameters, "title", ""))
	if title == "" {
		title = firstWords(content, 6)
	}
	id, err := h.Store.SaveNote(req.UserID, title, content)
	if err != nil {
		return Result{}, fmt.Errorf("failed to save note: %w", err)
	}
	return Result{Text: fmt.Sprintf("Saved note #%d: %s", id, title)}, nil
}

// GetNotes lists the requesting user's recent notes.
type GetNotes struct {
	Store *store.Service
}

func (h *GetNotes) Name() intent.Action { return intent.ActionGetNotes }

func (h *GetNotes) Execute(_ context.Context, req Request) (Result, error) {
	limit := GetInt(req.Parameters, "limit", 10)
	notes, err := h.Store.ListNotes(req.UserID, limit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list notes: %w", err)
	}
	if len(notes) == 0 {
		return Result{Text: "You have no saved notes."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your notes (%d):\n", len(notes))
	for _, n := range notes {
		fmt.Fprintf(&b, "#%d %s (%s)\n  %s\n", n.ID, n.Title, n.CreatedAt.Format("2006-01-02 15:04"), n.Content)
	}
	return Result{Text: strings.TrimRight(b.String(), "\n")}, nil
}

// ClearHistory deletes the requesting user's conversation history.
type ClearHistory struct {
	Store *store.Service
}

func (h *ClearHistory) Name() intent.Action { return intent.ActionClearHistory }

func (h *ClearHistory) Execute(_ context.Context, req Request) (Result, error) {
	n, err := h.Store.ClearHistory(req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to clear history: %w", err)
	}
	return Result{Text: fmt.Sprintf("Cleared %d conversation message(s).", n)}, nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
