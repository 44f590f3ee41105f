package memory

import (
	"sync"

	"proctored-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.LiveSession
	released map[string]struct{}
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.LiveSession),
		released: make(map[string]struct{}),
	}
}

func (s *SessionStore) GetOrCreate(attemptID string, create func() *app.LiveSession) (*app.LiveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live, ok := s.sessions[attemptID]; ok {
		return live, false
	}
	live := create()
	s.sessions[attemptID] = live
	return live, true
}

func (s *SessionStore) Get(attemptID string) (*app.LiveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.sessions[attemptID]
	return live, ok
}

func (s *SessionStore) Release(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[attemptID]; ok {
		s.released[attemptID] = struct{}{}
	}
}

// Released reports whether proctoring for the attempt has ended.
func (s *SessionStore) Released(attemptID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.released[attemptID]
	return ok
}

func (s *SessionStore) Delete(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, attemptID)
	delete(s.released, attemptID)
}
