package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/submit"
)

// ResultsService validates and persists results and answers the dashboard queries.
type ResultsService struct {
	store  ResultStore
	now    func() time.Time
	logger *zap.Logger
}

func NewResultsService(store ResultStore, logger *zap.Logger) *ResultsService {
	return NewResultsServiceWithClock(store, logger, time.Now)
}

// NewResultsServiceWithClock is test-only for deterministic timestamps.
func NewResultsServiceWithClock(store ResultStore, logger *zap.Logger, now func() time.Time) *ResultsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsService{store: store, now: now, logger: logger}
}

// Save validates and stores a submission. A known attempt ID yields
// domain.ErrDuplicateAttempt and no write.
func (s *ResultsService) Save(ctx context.Context, sub domain.ResultSubmission) (domain.AttemptRecord, error) {
	if err := sub.Validate(); err != nil {
		return domain.AttemptRecord{}, err
	}

	ids, err := s.store.ListAttemptIDs(ctx, sub.UserID)
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("list attempts: %w", err)
	}
	for _, id := range ids {
		if id == sub.AttemptID {
			return domain.AttemptRecord{ResultSubmission: sub}, domain.ErrDuplicateAttempt
		}
	}

	rec, err := s.store.Save(ctx, sub.Username, domain.AttemptRecord{
		ResultSubmission: sub,
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAttempt) {
			return rec, err
		}
		return domain.AttemptRecord{}, fmt.Errorf("save result: %w", err)
	}
	s.logger.Info("result saved",
		zap.String("userId", rec.UserID),
		zap.String("attemptId", rec.AttemptID),
		zap.String("partition", rec.Partition),
	)
	return rec, nil
}

// AttemptIDs lists every attempt recorded for a user.
func (s *ResultsService) AttemptIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.ListAttemptIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// History returns all records of a user, oldest first.
func (s *ResultsService) History(ctx context.Context, userID string) ([]domain.AttemptRecord, error) {
	records, err := s.store.QueryAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortByCreated(records)
	return records, nil
}

// ParticipationTimeline returns the creation time of every attempt and the
// distinct topics in first-attempted order. Records from every partition
// holding the user are merged.
func (s *ResultsService) ParticipationTimeline(ctx context.Context, userID string) (domain.ChartData, error) {
	records, err := s.History(ctx, userID)
	if err != nil {
		return domain.ChartData{}, err
	}
	chart := domain.ChartData{Dates: make([]time.Time, 0, len(records)), Topics: []string{}}
	seen := make(map[string]struct{})
	for _, rec := range records {
		chart.Dates = append(chart.Dates, rec.CreatedAt)
		if _, ok := seen[rec.Topic]; !ok {
			seen[rec.Topic] = struct{}{}
			chart.Topics = append(chart.Topics, rec.Topic)
		}
	}
	return chart, nil
}

// TopicStatistics sums the counts of every attempt of a user on a topic.
func (s *ResultsService) TopicStatistics(ctx context.Context, userID, topic string) (domain.TopicStats, error) {
	records, err := s.store.Query(ctx, userID, domain.TopicSlug(topic))
	if err != nil {
		return domain.TopicStats{}, err
	}
	var stats domain.TopicStats
	for _, rec := range records {
		stats.Attempts++
		stats.TotalQuestions += rec.TotalQuestions
		stats.Correct += rec.CorrectAnswers
		stats.Wrong += rec.WrongAnswers
		stats.NotAttempted += rec.NotAttempted
	}
	stats.Attempted = stats.Correct + stats.Wrong
	return stats, nil
}

func sortByCreated(records []domain.AttemptRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

// LocalResultsAPI lets the submission pipeline write through the service
// without an HTTP hop.
type LocalResultsAPI struct {
	service *ResultsService
}

func NewLocalResultsAPI(service *ResultsService) *LocalResultsAPI {
	return &LocalResultsAPI{service: service}
}

var _ submit.ResultsAPI = (*LocalResultsAPI)(nil)

func (a *LocalResultsAPI) AttemptIDs(ctx context.Context, userID string) ([]string, error) {
	return a.service.AttemptIDs(ctx, userID)
}

func (a *LocalResultsAPI) Submit(ctx context.Context, sub domain.ResultSubmission) (domain.AttemptRecord, error) {
	return a.service.Save(ctx, sub)
}
