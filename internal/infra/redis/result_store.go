package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"proctored-quiz-service/internal/domain"
)

const partitionsKey = "results:partitions"

// ResultStore keeps each partition as a hash results:{partition} whose
// fields are {len(userId)}:userId:attemptId and whose values are JSON records. The set
// results:partitions is the partition registry.
type ResultStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewResultStore(client *redis.Client) *ResultStore {
	return &ResultStore{client: client, clock: time.Now}
}

func (s *ResultStore) Save(ctx context.Context, displayName string, rec domain.AttemptRecord) (domain.AttemptRecord, error) {
	rec.Partition = domain.PartitionName(displayName)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("encode record: %w", err)
	}

	if err := s.client.SAdd(ctx, partitionsKey, rec.Partition).Err(); err != nil {
		return rec, fmt.Errorf("register partition: %w", err)
	}
	ok, err := s.client.HSetNX(ctx, s.partitionKey(rec.Partition), field(rec.UserID, rec.AttemptID), payload).Result()
	if err != nil {
		return rec, fmt.Errorf("write record: %w", err)
	}
	if !ok {
		return rec, domain.ErrDuplicateAttempt
	}
	return rec, nil
}

func (s *ResultStore) ListAttemptIDs(ctx context.Context, userID string) ([]string, error) {
	records, err := s.QueryAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	ids := []string{}
	for _, rec := range records {
		if _, ok := seen[rec.AttemptID]; ok {
			continue
		}
		seen[rec.AttemptID] = struct{}{}
		ids = append(ids, rec.AttemptID)
	}
	return ids, nil
}

func (s *ResultStore) Query(ctx context.Context, userID, topic string) ([]domain.AttemptRecord, error) {
	return s.scan(ctx, userID, domain.TopicSlug(topic))
}

func (s *ResultStore) QueryAll(ctx context.Context, userID string) ([]domain.AttemptRecord, error) {
	return s.scan(ctx, userID, "")
}

func (s *ResultStore) Partitions(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, partitionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// scan reads every partition concurrently and keeps the user's records.
func (s *ResultStore) scan(ctx context.Context, userID, topicSlug string) ([]domain.AttemptRecord, error) {
	names, err := s.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = []domain.AttemptRecord{}
	)
	prefix := userPrefix(userID)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		name := name
		g.Go(func() error {
			fields, err := s.client.HGetAll(gctx, s.partitionKey(name)).Result()
			if err != nil {
				return fmt.Errorf("read partition %s: %w", name, err)
			}
			var found []domain.AttemptRecord
			for f, raw := range fields {
				if !strings.HasPrefix(f, prefix) {
					continue
				}
				var rec domain.AttemptRecord
				if err := json.Unmarshal([]byte(raw), &rec); err != nil {
					return fmt.Errorf("decode %s/%s: %w", name, f, err)
				}
				if rec.UserID != userID {
					continue
				}
				if topicSlug != "" && domain.TopicSlug(rec.Topic) != topicSlug {
					continue
				}
				found = append(found, rec)
			}
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AttemptID < out[j].AttemptID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ResultStore) partitionKey(name string) string {
	return "results:" + name
}

// userPrefix length-prefixes the user id so ids containing ':' cannot
// collide across users.
func userPrefix(userID string) string {
	return strconv.Itoa(len(userID)) + ":" + userID + ":"
}

func field(userID, attemptID string) string {
	return userPrefix(userID) + attemptID
}
