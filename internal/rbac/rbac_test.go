package rbac

import (
	"testing"

	"github.com/valetd/valet/internal/intent"
)

func TestResolverOwnerAllowlist(t *testing.T) {
	r := NewResolver([]string{"1001", "1002"})
	if got := r.Resolve("1001"); got != RoleOwner {
		t.Fatalf("allow-listed user should be owner, got %s", got)
	}
	if got := r.Resolve("9999"); got != RoleNone {
		t.Fatalf("unknown user should be none, got %s", got)
	}
}

func TestResolverIgnoresEmptyIDs(t *testing.T) {
	r := NewResolver([]string{""})
	if got := r.Resolve(""); got != RoleNone {
		t.Fatalf("empty id should never resolve to owner, got %s", got)
	}
}

func TestRoleOrdering(t *testing.T) {
	if !(RoleNone < RoleViewer && RoleViewer < RoleOperator && RoleOperator < RoleOwner) {
		t.Fatal("role ordinals out of order")
	}
}

func TestMatrixFailClosed(t *testing.T) {
	m := DefaultMatrix()
	if got := m.Required(intent.Action("not_a_real_action")); got != RoleOwner {
		t.Fatalf("unlisted action should require owner, got %s", got)
	}
	if m.Check(RoleOperator, intent.Action("not_a_real_action")) {
		t.Fatal("operator must not pass an unlisted action")
	}
}

func TestMatrixCheck(t *testing.T) {
	m := DefaultMatrix()
	cases := []struct {
		role   Role
		action intent.Action
		want   bool
	}{
		{RoleViewer, intent.ActionChat, true},
		{RoleViewer, intent.ActionReadFile, false},
		{RoleOperator, intent.ActionReadFile, true},
		{RoleOperator, intent.ActionDeleteFile, false},
		{RoleOwner, intent.ActionDeleteFile, true},
		{RoleNone, intent.ActionChat, false},
	}
	for _, c := range cases {
		if got := m.Check(c.role, c.action); got != c.want {
			t.Errorf("Check(%s, %s) = %v, want %v", c.role, c.action, got, c.want)
		}
	}
}

func TestAllowedEnumeration(t *testing.T) {
	m := DefaultMatrix()
	viewer := m.Allowed(RoleViewer)
	if len(viewer) != 3 {
		t.Fatalf("viewer should have 3 actions, got %d: %v", len(viewer), viewer)
	}
	owner := m.Allowed(RoleOwner)
	if len(owner) != len(m) {
		t.Fatalf("owner should have all %d actions, got %d", len(m), len(owner))
	}
	none := m.Allowed(RoleNone)
	if len(none) != 0 {
		t.Fatalf("none should have no actions, got %v", none)
	}
}
