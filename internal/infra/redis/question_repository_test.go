package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"c_programming": sampleQuestions(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	qs, err := repo.GetQuestions(context.Background(), "c_programming")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(qs) != 2 || loader.calls != 1 {
		t.Fatalf("expected 2 questions from one load, got %d (calls=%d)", len(qs), loader.calls)
	}
	if !mr.Exists("questions:c_programming") {
		t.Fatalf("expected cache key to be written")
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetQuestions(context.Background(), "c_programming")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached[1].Answer != "main" || cached[1].Prompt != "Entry point?" {
		t.Fatalf("cached question lost fields: %+v", cached[1])
	}

	if err := repo.Invalidate(context.Background(), "c_programming"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetQuestions(context.Background(), "c_programming")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, calls=%d", loader.calls)
	}
}

func TestQuestionRepositoryExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"c_programming": sampleQuestions(),
		}),
	}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute)
	_, _ = repo.GetQuestions(context.Background(), "c_programming")

	mr.FastForward(2 * time.Minute)
	_, _ = repo.GetQuestions(context.Background(), "c_programming")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, calls=%d", loader.calls)
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, topic string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, topic)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Topic: "c_programming", Prompt: "Size of char?", Options: []string{"1", "2", "4"}, Answer: "1"},
		{ID: 2, Topic: "c_programming", Prompt: "Entry point?", Options: []string{"main", "start"}, Answer: "main"},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
