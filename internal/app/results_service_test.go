package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"proctored-quiz-service/internal/app"
	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/infra/memory"
	"proctored-quiz-service/internal/submit"
)

func newResultsService(start time.Time) *app.ResultsService {
	now := start
	clock := func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return app.NewResultsServiceWithClock(memory.NewResultStore(), nil, clock)
}

func submission(userID, name, topic, attemptID string, correct, wrong, skipped int) domain.ResultSubmission {
	return domain.ResultSubmission{
		UserID:         userID,
		Username:       name,
		Topic:          topic,
		TotalQuestions: correct + wrong + skipped,
		CorrectAnswers: correct,
		WrongAnswers:   wrong,
		NotAttempted:   skipped,
		TimeTaken:      120,
		AttemptID:      attemptID,
	}
}

func TestResultsServiceSaveAndDedup(t *testing.T) {
	ctx := context.Background()
	service := newResultsService(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))

	rec, err := service.Save(ctx, submission("u1", "Solanki Singha!!", "C Programming", "a1", 10, 2, 3))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.Partition != "results_solanki_singha" || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := service.Save(ctx, submission("u1", "Solanki Singha!!", "C Programming", "a1", 10, 2, 3)); !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	bad := submission("u1", "Solanki Singha!!", "C Programming", "a2", 10, 2, 3)
	bad.TotalQuestions = 20
	if _, err := service.Save(ctx, bad); !errors.Is(err, domain.ErrInvalidResult) {
		t.Fatalf("expected validation error, got %v", err)
	}

	ids, err := service.AttemptIDs(ctx, "u1")
	if err != nil || len(ids) != 1 || ids[0] != "a1" {
		t.Fatalf("unexpected attempt ids %v err=%v", ids, err)
	}
	empty, _ := service.AttemptIDs(ctx, "nobody")
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestResultsServiceAggregations(t *testing.T) {
	ctx := context.Background()
	service := newResultsService(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))

	saves := []domain.ResultSubmission{
		submission("u1", "Solanki", "C Programming", "a1", 5, 3, 2),
		submission("u1", "Solanki", "Java Programming", "a2", 7, 1, 2),
		submission("u1", "Solanki Singha", "C Programming", "a3", 8, 2, 0), // renamed: second partition
		submission("u2", "Bob", "C Programming", "b1", 1, 1, 1),
	}
	for _, s := range saves {
		if _, err := service.Save(ctx, s); err != nil {
			t.Fatalf("save %s: %v", s.AttemptID, err)
		}
	}

	chart, err := service.ParticipationTimeline(ctx, "u1")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(chart.Dates) != 3 {
		t.Fatalf("expected dates from both partitions, got %v", chart.Dates)
	}
	for i := 1; i < len(chart.Dates); i++ {
		if chart.Dates[i].Before(chart.Dates[i-1]) {
			t.Fatalf("dates not sorted: %v", chart.Dates)
		}
	}
	if len(chart.Topics) != 2 || chart.Topics[0] != "C Programming" || chart.Topics[1] != "Java Programming" {
		t.Fatalf("unexpected topics %v", chart.Topics)
	}

	stats, err := service.TopicStatistics(ctx, "u1", "c_programming")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.TopicStats{Attempts: 2, TotalQuestions: 20, Attempted: 18, Correct: 13, Wrong: 5, NotAttempted: 2}
	if stats != want {
		t.Fatalf("unexpected stats:\n got %+v\nwant %+v", stats, want)
	}

	history, _ := service.History(ctx, "u2")
	if len(history) != 1 || history[0].AttemptID != "b1" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestLocalResultsAPIWithPipeline(t *testing.T) {
	ctx := context.Background()
	service := newResultsService(time.Now())
	api := app.NewLocalResultsAPI(service)
	sub := submission("u1", "Alice", "C Programming", "a1", 1, 0, 0)

	first, err := submit.New(api, nil, submit.Options{}).Submit(ctx, sub)
	if err != nil || first.Status != submit.StatusSaved {
		t.Fatalf("first mount: %+v err=%v", first, err)
	}
	second, err := submit.New(api, nil, submit.Options{}).Submit(ctx, sub)
	if err != nil || second.Status != submit.StatusAlreadySaved {
		t.Fatalf("remount: %+v err=%v", second, err)
	}
	history, _ := service.History(ctx, "u1")
	if len(history) != 1 {
		t.Fatalf("expected a single persisted record, got %d", len(history))
	}
}
