package ratelimit

import (
	"testing"
	"time"
)

func TestLimitEnforced(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(30, time.Minute)
	l.SetClock(func() time.Time { return base })

	for i := 0; i < 30; i++ {
		if !l.Allow("u1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("u1") {
		t.Fatal("31st request within the window should be denied")
	}
}

func TestWindowExpiry(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := New(30, time.Minute)
	l.SetClock(func() time.Time { return now })

	for i := 0; i < 30; i++ {
		l.Allow("u1")
	}
	if l.Allow("u1") {
		t.Fatal("expected denial at the cap")
	}

	now = base.Add(61 * time.Second)
	if !l.Allow("u1") {
		t.Fatal("request after the window should be allowed again")
	}
}

func TestUsersIndependent(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(2, time.Minute)
	l.SetClock(func() time.Time { return base })

	l.Allow("u1")
	l.Allow("u1")
	if l.Allow("u1") {
		t.Fatal("u1 should be over the limit")
	}
	if !l.Allow("u2") {
		t.Fatal("u2 should be unaffected by u1")
	}
}

func TestRemainingNeverMutates(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(5, time.Minute)
	l.SetClock(func() time.Time { return base })

	if got := l.Remaining("u1"); got != 5 {
		t.Fatalf("fresh user should have 5 remaining, got %d", got)
	}
	l.Allow("u1")
	l.Allow("u1")
	for i := 0; i < 10; i++ {
		if got := l.Remaining("u1"); got != 3 {
			t.Fatalf("Remaining should be stable at 3, got %d", got)
		}
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(1, time.Minute)
	l.SetClock(func() time.Time { return base })

	l.Allow("u1")
	l.Allow("u1") // denied, not recorded
	if got := l.Remaining("u1"); got != 0 {
		t.Fatalf("Remaining should floor at 0, got %d", got)
	}
}
