// Package actions provides the handler framework and the concrete action
// implementations the router dispatches to.
package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/valetd/valet/internal/intent"
)

// Request carries the validated parameters of one dispatch plus the
// identity of the user it runs on behalf of.
type Request struct {
	UserID     string
	Parameters map[string]any
}

// Result is a handler outcome: a textual reply and an optional file to
// deliver alongside it. Failure is signalled by the Execute error, never
// by a marker inside Text.
type Result struct {
	Text     string
	FilePath string
}

// Handler is one executable action.
type Handler interface {
	// Name returns the action this handler implements.
	Name() intent.Action
	// Execute runs the action. On error, return a user-presentable message.
	Execute(ctx context.Context, req Request) (Result, error)
}

// Registry manages handler registration and lookup.
type Registry struct {
	handlers map[intent.Action]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[intent.Action]Handler)}
}

// Register adds a handler, replacing any previous one for the same action.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Get returns the handler for an action.
func (r *Registry) Get(action intent.Action) (Handler, bool) {
	h, ok := r.handlers[action]
	return h, ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []intent.Action {
	out := make([]intent.Action, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate confirms every required action has a registered handler.
// Run at startup so unregistered actions fail at boot, not at request time.
func (r *Registry) Validate(required []intent.Action) error {
	var missing []string
	for _, a := range required {
		if _, ok := r.handlers[a]; !ok {
			missing = append(missing, string(a))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("actions without handlers: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetString extracts a string parameter with a default value.
func GetString(params map[string]any, key, defaultVal string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int parameter with a default value.
func GetInt(params map[string]any, key string, defaultVal int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case string:
			var parsed int
			if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &parsed); err == nil {
				return parsed
			}
		}
	}
	return defaultVal
}
