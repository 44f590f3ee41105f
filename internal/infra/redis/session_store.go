package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"proctored-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Machines live in a local map; Redis carries a liveness marker per attempt
// (quiz:session:{attemptId}) while proctoring is active, so other instances
// and operators can see which attempts are running.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.LiveSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.LiveSession),
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
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(attemptID), live.UserID, s.ttl).Err()
	return live, true
}

func (s *SessionStore) Get(attemptID string) (*app.LiveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.sessions[attemptID]
	return live, ok
}

func (s *SessionStore) Release(attemptID string) {
	_ = s.client.Del(context.Background(), s.key(attemptID)).Err()
}

func (s *SessionStore) Delete(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, attemptID)
	_ = s.client.Del(context.Background(), s.key(attemptID)).Err()
}

// Active reports whether the attempt still holds a liveness marker.
func (s *SessionStore) Active(ctx context.Context, attemptID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(attemptID)).Result()
	return n == 1, err
}

func (s *SessionStore) key(attemptID string) string {
	return "quiz:session:" + attemptID
}
