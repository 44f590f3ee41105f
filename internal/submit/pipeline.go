// Package submit delivers a scored result to the results API with an
// existence check before every attempt and a bounded retry budget.
package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"proctored-quiz-service/internal/domain"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
)

// ResultsAPI is the storage boundary the pipeline talks to.
type ResultsAPI interface {
	AttemptIDs(ctx context.Context, userID string) ([]string, error)
	Submit(ctx context.Context, submission domain.ResultSubmission) (domain.AttemptRecord, error)
}

// Level classifies a Notice.
type Level string

const (
	LevelProgress Level = "progress"
	LevelSuccess  Level = "success"
	LevelError    Level = "error"
)

// Notice is a user-visible progress message.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Attempt int    `json:"attempt"`
}

// Notifier shows notices to the participant.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Status is the successful end state of a submission.
type Status string

const (
	StatusSaved        Status = "saved"
	StatusAlreadySaved Status = "already-saved"
)

// Outcome reports how a submission ended.
type Outcome struct {
	Status   Status
	Attempts int
	Record   domain.AttemptRecord
}

// Options configure a Pipeline.
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *zap.Logger
	// After is overridable in tests; defaults to time.After.
	After func(time.Duration) <-chan time.Time
}

var attemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quiz_result_submit_attempts_total",
		Help: "Result submission attempts by outcome",
	},
	[]string{"outcome"},
)

// Collectors exposes the pipeline metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{attemptsTotal}
}

// Pipeline submits one session's result. It is created once per session
// instance; after a success it never touches the network again.
type Pipeline struct {
	api         ResultsAPI
	notifier    Notifier
	maxAttempts int
	retryDelay  time.Duration
	after       func(time.Duration) <-chan time.Time
	logger      *zap.Logger

	mu        sync.Mutex
	succeeded bool
	last      Outcome
}

// New builds a pipeline; a nil notifier discards notices.
func New(api ResultsAPI, notifier Notifier, opts Options) *Pipeline {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}
	return &Pipeline{
		api:         api,
		notifier:    notifier,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		after:       opts.After,
		logger:      opts.Logger,
	}
}

// Succeeded reports whether a submission has completed.
func (p *Pipeline) Succeeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.succeeded
}

// Submit persists the submission. Validation failures return immediately
// and are never retried; transient failures are retried after RetryDelay
// until MaxAttempts is reached, then ErrSubmissionFailed is returned.
// Cancelling ctx abandons pending retries.
func (p *Pipeline) Submit(ctx context.Context, sub domain.ResultSubmission) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.succeeded {
		return Outcome{Status: StatusAlreadySaved, Record: p.last.Record}, nil
	}

	logger := p.logger.With(zap.String("attemptId", sub.AttemptID), zap.String("userId", sub.UserID))
	if err := sub.Validate(); err != nil {
		attemptsTotal.WithLabelValues("invalid").Inc()
		p.notifier.Notify(Notice{Level: LevelError, Message: "Error: " + err.Error(), Attempt: 1})
		logger.Warn("result rejected", zap.Error(err))
		return Outcome{Attempts: 1}, err
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Attempts: attempt - 1}, err
		}
		p.notifier.Notify(Notice{
			Level:   LevelProgress,
			Message: fmt.Sprintf("Saving results (attempt %d/%d)...", attempt, p.maxAttempts),
			Attempt: attempt,
		})

		outcome, err := p.attempt(ctx, sub)
		outcome.Attempts = attempt
		if err == nil {
			p.succeeded = true
			p.last = outcome
			attemptsTotal.WithLabelValues(string(outcome.Status)).Inc()
			msg := "Results saved successfully!"
			if outcome.Status == StatusAlreadySaved {
				msg = "Results already saved!"
			}
			p.notifier.Notify(Notice{Level: LevelSuccess, Message: msg, Attempt: attempt})
			logger.Info("result submitted", zap.String("status", string(outcome.Status)), zap.Int("attempt", attempt))
			return outcome, nil
		}

		lastErr = err
		p.notifier.Notify(Notice{Level: LevelError, Message: "Error: " + err.Error(), Attempt: attempt})
		if errors.Is(err, domain.ErrInvalidResult) {
			attemptsTotal.WithLabelValues("invalid").Inc()
			logger.Warn("result rejected", zap.Int("attempt", attempt), zap.Error(err))
			return Outcome{Attempts: attempt}, err
		}
		attemptsTotal.WithLabelValues("transient").Inc()
		logger.Warn("result submit failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Outcome{Attempts: attempt}, ctx.Err()
		case <-p.after(p.retryDelay):
		}
	}

	p.notifier.Notify(Notice{Level: LevelError, Message: domain.ErrSubmissionFailed.Error(), Attempt: p.maxAttempts})
	logger.Error("result submit gave up", zap.Int("attempts", p.maxAttempts), zap.Error(lastErr))
	return Outcome{Attempts: p.maxAttempts}, fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, lastErr)
}

func (p *Pipeline) attempt(ctx context.Context, sub domain.ResultSubmission) (Outcome, error) {
	ids, err := p.api.AttemptIDs(ctx, sub.UserID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check attempts: %w", err)
	}
	for _, id := range ids {
		if id == sub.AttemptID {
			return Outcome{Status: StatusAlreadySaved}, nil
		}
	}

	record, err := p.api.Submit(ctx, sub)
	if errors.Is(err, domain.ErrDuplicateAttempt) {
		return Outcome{Status: StatusAlreadySaved, Record: record}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusSaved, Record: record}, nil
}
