// Package rbac provides role resolution and action authorization.
package rbac

import (
	"sort"

	"github.com/valetd/valet/internal/intent"
)

// Role is an ordered privilege level. Comparisons use the ordinal.
type Role int

const (
	RoleNone     Role = iota // unauthorized, no access
	RoleViewer               // status, help, chat only
	RoleOperator             // read files, screenshots, system info
	RoleOwner                // full access
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleViewer:
		return "viewer"
	case RoleOperator:
		return "operator"
	case RoleOwner:
		return "owner"
	}
	return "unknown"
}

// Resolver maps user identifiers to roles via a static allow-list.
// Members of the allow-list are owners; everyone else gets RoleNone.
type Resolver struct {
	owners map[string]bool
}

// NewResolver creates a resolver from the configured owner IDs.
func NewResolver(ownerIDs []string) *Resolver {
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		if id != "" {
			owners[id] = true
		}
	}
	return &Resolver{owners: owners}
}

// Resolve returns the role for a user identifier.
func (r *Resolver) Resolve(userID string) Role {
	if r.owners[userID] {
		return RoleOwner
	}
	return RoleNone
}

// Matrix maps each action to the minimum role required to run it.
// Lookups for unlisted actions resolve to RoleOwner (fail-closed).
type Matrix map[intent.Action]Role

// DefaultMatrix returns the standard permission matrix.
func DefaultMatrix() Matrix {
	return Matrix{
		// Everyone (viewer+)
		intent.ActionChat:   RoleViewer,
		intent.ActionHelp:   RoleViewer,
		intent.ActionStatus: RoleViewer,

		// Operator+
		intent.ActionReadFile:    RoleOperator,
		intent.ActionListFiles:   RoleOperator,
		intent.ActionSearchFiles: RoleOperator,
		intent.ActionScreenshot:  RoleOperator,
		intent.ActionSystemInfo:  RoleOperator,

		// Owner only
		intent.ActionOpenApp:      RoleOwner,
		intent.ActionRunCommand:   RoleOwner,
		intent.ActionWriteFile:    RoleOwner,
		intent.ActionDeleteFile:   RoleOwner,
		intent.ActionSendFile:     RoleOwner,
		intent.ActionSendMessage:  RoleOwner,
		intent.ActionKillProcess:  RoleOwner,
		intent.ActionRunScript:    RoleOwner,
		intent.ActionPower:        RoleOwner,
		intent.ActionLock:         RoleOwner,
		intent.ActionVolume:       RoleOwner,
		intent.ActionSaveNote:     RoleOwner,
		intent.ActionGetNotes:     RoleOwner,
		intent.ActionClearHistory: RoleOwner,
	}
}

// Required returns the minimum role for an action, RoleOwner when unlisted.
func (m Matrix) Required(action intent.Action) Role {
	if role, ok := m[action]; ok {
		return role
	}
	return RoleOwner
}

// Check reports whether role is sufficient for action.
func (m Matrix) Check(role Role, action intent.Action) bool {
	return role >= m.Required(action)
}

// Allowed returns all actions the given role may run, sorted by name.
func (m Matrix) Allowed(role Role) []intent.Action {
	var out []intent.Action
	for action, required := range m {
		if role >= required {
			out = append(out, action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
