package app

import (
	"context"

	"proctored-quiz-service/internal/domain"
)

// QuestionRepository loads a topic's question set (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context, topic string) ([]domain.Question, error)
}

// ResultStore persists attempt records in one partition per user name.
type ResultStore interface {
	// Save appends rec to the partition resolved from displayName, creating
	// the partition on first use. A repeated (userId, attemptId) pair
	// returns domain.ErrDuplicateAttempt.
	Save(ctx context.Context, displayName string, rec domain.AttemptRecord) (domain.AttemptRecord, error)
	// ListAttemptIDs unions the user's attempt IDs across all partitions.
	ListAttemptIDs(ctx context.Context, userID string) ([]string, error)
	// Query returns the user's records for a topic slug across all partitions.
	Query(ctx context.Context, userID, topic string) ([]domain.AttemptRecord, error)
	// QueryAll returns every record of the user across all partitions.
	QueryAll(ctx context.Context, userID string) ([]domain.AttemptRecord, error)
	// Partitions lists the partition names known to the store.
	Partitions(ctx context.Context) ([]string, error)
}

// SessionRepository abstracts where live sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(attemptID string, create func() *LiveSession) (*LiveSession, bool)
	Get(attemptID string) (*LiveSession, bool)
	// Release marks proctoring as finished; the session stays readable.
	Release(attemptID string)
	Delete(attemptID string)
}
