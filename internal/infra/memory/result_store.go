package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"proctored-quiz-service/internal/domain"
)

// ResultStore keeps one partition per normalized user name in process memory.
type ResultStore struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	clock      func() time.Time
}

type partition struct {
	records []domain.AttemptRecord
	index   map[string]struct{} // userId + "\x00" + attemptId
}

func NewResultStore() *ResultStore {
	return &ResultStore{partitions: make(map[string]*partition), clock: time.Now}
}

// partitionFor is the lookup-or-create step of the partition registry.
// Callers hold the write lock.
func (s *ResultStore) partitionFor(name string) *partition {
	p, ok := s.partitions[name]
	if !ok {
		p = &partition{index: make(map[string]struct{})}
		s.partitions[name] = p
	}
	return p
}

func (s *ResultStore) Save(_ context.Context, displayName string, rec domain.AttemptRecord) (domain.AttemptRecord, error) {
	rec.Partition = domain.PartitionName(displayName)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partitionFor(rec.Partition)
	key := rec.UserID + "\x00" + rec.AttemptID
	if _, dup := p.index[key]; dup {
		return rec, domain.ErrDuplicateAttempt
	}
	p.index[key] = struct{}{}
	p.records = append(p.records, rec)
	return rec, nil
}

func (s *ResultStore) ListAttemptIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	ids := []string{}
	for _, name := range s.partitionNamesLocked() {
		for _, rec := range s.partitions[name].records {
			if rec.UserID != userID {
				continue
			}
			if _, ok := seen[rec.AttemptID]; ok {
				continue
			}
			seen[rec.AttemptID] = struct{}{}
			ids = append(ids, rec.AttemptID)
		}
	}
	return ids, nil
}

func (s *ResultStore) Query(_ context.Context, userID, topic string) ([]domain.AttemptRecord, error) {
	return s.filter(userID, domain.TopicSlug(topic)), nil
}

func (s *ResultStore) QueryAll(_ context.Context, userID string) ([]domain.AttemptRecord, error) {
	return s.filter(userID, ""), nil
}

func (s *ResultStore) Partitions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitionNamesLocked(), nil
}

func (s *ResultStore) filter(userID, topicSlug string) []domain.AttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.AttemptRecord{}
	for _, name := range s.partitionNamesLocked() {
		for _, rec := range s.partitions[name].records {
			if rec.UserID != userID {
				continue
			}
			if topicSlug != "" && domain.TopicSlug(rec.Topic) != topicSlug {
				continue
			}
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *ResultStore) partitionNamesLocked() []string {
	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
