// Package confirm holds per-user pending confirmations for dangerous actions.
package confirm

import (
	"strings"
	"sync"

	"github.com/valetd/valet/internal/intent"
)

// Pending is a dangerous action waiting for a yes/no reply.
type Pending struct {
	Action     intent.Action
	Parameters map[string]any
	RawCommand string
}

// Store keeps at most one pending confirmation per user. It is safe for
// concurrent use; consumption is an atomic check-and-clear so two racing
// messages from the same user cannot both observe the pending record.
type Store struct {
	mu           sync.Mutex
	pending      map[string]Pending
	affirmatives map[string]bool
}

var defaultAffirmatives = []string{"YES", "Y", "CONFIRM", "DO IT", "OK"}

// NewStore creates a confirmation store. Extra affirmative tokens (e.g.
// locale-specific ones) may be supplied on top of the built-in set.
func NewStore(extraAffirmatives ...string) *Store {
	s := &Store{
		pending:      make(map[string]Pending),
		affirmatives: make(map[string]bool),
	}
	for _, tok := range defaultAffirmatives {
		s.affirmatives[tok] = true
	}
	for _, tok := range extraAffirmatives {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if tok != "" {
			s.affirmatives[tok] = true
		}
	}
	return s
}

// Arm stores a pending confirmation for the user, replacing any existing one.
func (s *Store) Arm(userID string, p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = p
}

// Take removes and returns the user's pending confirmation, if any.
// This is the only consume path; a second Take finds nothing.
func (s *Store) Take(userID string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[userID]
	if ok {
		delete(s.pending, userID)
	}
	return p, ok
}

// Has reports whether the user has a pending confirmation without consuming it.
func (s *Store) Has(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[userID]
	return ok
}

// IsAffirmative reports whether a reply confirms the pending action.
// Matching is case-insensitive on the trimmed reply; anything else cancels.
func (s *Store) IsAffirmative(reply string) bool {
	return s.affirmatives[strings.ToUpper(strings.TrimSpace(reply))]
}
