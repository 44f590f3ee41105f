package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"proctored-quiz-service/internal/domain"
)

func record(userID, attemptID, topic string, at time.Time) domain.AttemptRecord {
	return domain.AttemptRecord{
		ResultSubmission: domain.ResultSubmission{
			UserID:         userID,
			Username:       "Solanki Singha!!",
			Topic:          topic,
			TotalQuestions: 15,
			CorrectAnswers: 10,
			WrongAnswers:   2,
			NotAttempted:   3,
			AttemptID:      attemptID,
		},
		CreatedAt: at,
	}
}

func TestResultStorePartitionsByDisplayName(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	now := time.Now()

	rec, err := store.Save(ctx, "Solanki Singha!!", record("u1", "a1", "C Programming", now))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.Partition != "results_solanki_singha" {
		t.Fatalf("unexpected partition %q", rec.Partition)
	}
	if _, err := store.Save(ctx, "solanki singha", record("u1", "a1", "C Programming", now)); !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	// Same user after a display name change lands in a second partition.
	if _, err := store.Save(ctx, "Solanki S.", record("u1", "a2", "Java Programming", now.Add(time.Minute))); err != nil {
		t.Fatalf("save renamed: %v", err)
	}
	if _, err := store.Save(ctx, "Bob", record("u2", "b1", "C Programming", now)); err != nil {
		t.Fatalf("save other user: %v", err)
	}

	parts, _ := store.Partitions(ctx)
	if len(parts) != 3 {
		t.Fatalf("expected 3 partitions, got %v", parts)
	}

	ids, _ := store.ListAttemptIDs(ctx, "u1")
	if len(ids) != 2 {
		t.Fatalf("expected attempt ids from both partitions, got %v", ids)
	}

	cprog, _ := store.Query(ctx, "u1", "c_programming")
	if len(cprog) != 1 || cprog[0].AttemptID != "a1" {
		t.Fatalf("unexpected topic query %+v", cprog)
	}
	all, _ := store.QueryAll(ctx, "u1")
	if len(all) != 2 || all[0].AttemptID != "a1" {
		t.Fatalf("expected both records oldest first, got %+v", all)
	}
}

func TestResultStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	saved := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Save(ctx, "Alice", record("u1", "same-attempt", "C Programming", time.Now())); err == nil {
				mu.Lock()
				saved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if saved != 1 {
		t.Fatalf("expected exactly one persisted record, got %d", saved)
	}
}
