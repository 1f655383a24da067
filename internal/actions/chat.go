package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/valetd/valet/internal/intent"
)

// Chat returns the model's conversational response verbatim.
type Chat struct{}

func (h *Chat) Name() intent.Action { return intent.ActionChat }

func (h *Chat) Execute(_ context.Context, req Request) (Result, error) {
	response := GetString(req.Parameters, "response", "")
	if response == "" {
		response = "I'm here. What can I do for you?"
	}
	return Result{Text: response}, nil
}

// Help describes what the assistant can do.
type Help struct {
	Registry *Registry
}

func (h *Help) Name() intent.Action { return intent.ActionHelp }

func (h *Help) Execute(_ context.Context, _ Request) (Result, error) {
	var b strings.Builder
	b.WriteString("I understand natural language. Examples:\n")
	b.WriteString("  \"read /etc/hostname\"\n")
	b.WriteString("  \"take a screenshot\"\n")
	b.WriteString("  \"set the volume to 40\"\n")
	b.WriteString("  \"save a note: call the dentist\"\n")
	if h.Registry != nil {
		names := h.Registry.Names()
		strs := make([]string, len(names))
		for i, n := range names {
			strs[i] = string(n)
		}
		sort.Strings(strs)
		fmt.Fprintf(&b, "\nAvailable actions: %s", strings.Join(strs, ", "))
	}
	return Result{Text: b.String()}, nil
}

// Status reports the assistant's health: uptime and model reachability.
type Status struct {
	Started    time.Time
	ModelName  string
	ModelProbe func(ctx context.Context) bool
}

func (h *Status) Name() intent.Action { return intent.ActionStatus }

func (h *Status) Execute(ctx context.Context, _ Request) (Result, error) {
	uptime := time.Since(h.Started).Round(time.Second)
	model := "unreachable"
	if h.ModelProbe != nil && h.ModelProbe(ctx) {
		model = "ok"
	}
	name := h.ModelName
	if name == "" {
		name = "model"
	}
	return Result{Text: fmt.Sprintf("Up %s. %s: %s.", uptime, name, model)}, nil
}
