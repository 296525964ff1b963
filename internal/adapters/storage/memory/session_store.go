package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

// SessionStore keeps the session collection in process memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions []*domain.Session
	saves    int
}

func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

func (s *SessionStore) LoadSessions(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneAll(s.sessions), nil
}

func (s *SessionStore) SaveSessions(ctx context.Context, sessions []*domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = cloneAll(sessions)
	s.saves++
	return nil
}

// Saves returns how many times the collection was written.
func (s *SessionStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func cloneAll(in []*domain.Session) []*domain.Session {
	out := make([]*domain.Session, 0, len(in))
	for _, sess := range in {
		out = append(out, sess.Clone())
	}
	return out
}
