package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"proctored-quiz-service/internal/domain"
)

func TestQuestionRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{
			"c_programming": sampleQuestions(),
		}),
	}
	repo := NewQuestionRepository(loader, time.Minute)

	if _, err := repo.GetQuestions(context.Background(), "c_programming"); err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	qs, err := repo.GetQuestions(context.Background(), "c_programming")
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls != 1 || len(qs) != 2 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionRepositoryReloadsAfterExpiry(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{"c_programming": sampleQuestions()}),
	}
	repo := NewQuestionRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestions(context.Background(), "c_programming")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestions(context.Background(), "c_programming")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", loader.calls)
	}
}

func TestStaticLoaderUnknownTopic(t *testing.T) {
	repo := NewQuestionRepository(NewStaticQuestionLoader(nil), time.Minute)
	if _, err := repo.GetQuestions(context.Background(), "astrology"); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected topic error, got %v", err)
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, topic string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, topic)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Topic: "c_programming", Prompt: "Which header declares printf?", Options: []string{"stdio.h", "stdlib.h"}, Answer: "stdio.h"},
		{ID: 2, Topic: "c_programming", Prompt: "Size of char?", Options: []string{"1", "2"}, Answer: "1"},
	}
}
