// Package ratelimit provides a per-user sliding-window request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks request timestamps per user and rejects requests that
// exceed the configured rate. State is in-memory and per-process.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	stamps map[string][]time.Time
}

// New creates a limiter allowing max requests per window.
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
		stamps: make(map[string][]time.Time),
	}
}

// SetClock overrides the time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Allow prunes expired timestamps for the user, then either records the
// request and returns true, or returns false without recording.
func (l *Limiter) Allow(userID string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	active := prune(l.stamps[userID], cutoff)
	if len(active) >= l.max {
		l.stamps[userID] = active
		return false
	}
	l.stamps[userID] = append(active, now)
	return true
}

// Remaining returns how many requests the user has left in the current
// window. It never mutates state and never returns a negative count.
func (l *Limiter) Remaining(userID string) int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	active := 0
	for _, ts := range l.stamps[userID] {
		if ts.After(cutoff) {
			active++
		}
	}
	if active >= l.max {
		return 0
	}
	return l.max - active
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	out := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			out = append(out, ts)
		}
	}
	return out
}
