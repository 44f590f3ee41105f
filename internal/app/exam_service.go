package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/session"
)

var terminationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quiz_sessions_terminated_total",
		Help: "Quiz sessions terminated, by cause",
	},
	[]string{"cause"},
)

// Collectors exposes the app metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{terminationsTotal}
}

// LiveSession is a running or recently terminated session and its owner.
type LiveSession struct {
	UserID   string
	Username string
	Machine  *session.Machine
}

// ExamOptions configure new sessions.
type ExamOptions struct {
	Duration       time.Duration
	Retention      time.Duration
	DisallowedKeys []string
	NewTicker      func(time.Duration) session.Ticker
	NewRand        func() *rand.Rand
}

// StartRequest opens or resumes a session. AttemptID is set when the client
// reloads and wants its existing session back.
type StartRequest struct {
	Topic     string
	UserID    string
	Username  string
	AttemptID string
}

// ExamService owns the lifecycle of live quiz sessions.
type ExamService struct {
	sessions  SessionRepository
	questions QuestionRepository
	opts      ExamOptions
	logger    *zap.Logger

	mu      sync.Mutex
	evictor map[string]*time.Timer
}

func NewExamService(sessions SessionRepository, questions QuestionRepository, opts ExamOptions, logger *zap.Logger) *ExamService {
	if opts.Duration <= 0 {
		opts.Duration = session.DefaultDuration
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{
		sessions:  sessions,
		questions: questions,
		opts:      opts,
		logger:    logger,
		evictor:   make(map[string]*time.Timer),
	}
}

// Start fetches the topic's questions and starts a new session, or hands
// back the caller's existing session when req.AttemptID is live. A stale or
// unknown AttemptID never names a new session; new sessions always get a
// server-generated ID.
func (s *ExamService) Start(ctx context.Context, req StartRequest, hooks session.Hooks) (*LiveSession, bool, error) {
	if req.AttemptID != "" {
		if live, ok := s.sessions.Get(req.AttemptID); ok {
			if live.UserID != req.UserID {
				return nil, false, domain.ErrSessionNotFound
			}
			live.Machine.SetHooks(s.wrapHooks(req.AttemptID, hooks))
			return live, true, nil
		}
	}

	topic := domain.TopicSlug(req.Topic)
	questions, err := s.questions.GetQuestions(ctx, topic)
	if err != nil {
		return nil, false, err
	}
	if len(questions) == 0 {
		return nil, false, domain.ErrTopicNotFound
	}

	attemptID := uuid.NewString()

	live, created := s.sessions.GetOrCreate(attemptID, func() *LiveSession {
		opts := session.Options{
			Topic:          topic,
			AttemptID:      attemptID,
			Duration:       s.opts.Duration,
			DisallowedKeys: s.opts.DisallowedKeys,
			Proctor:        proctorLease{sessions: s.sessions, attemptID: attemptID},
			Hooks:          s.wrapHooks(attemptID, hooks),
			NewTicker:      s.opts.NewTicker,
			Logger:         s.logger,
		}
		if s.opts.NewRand != nil {
			opts.Rand = s.opts.NewRand()
		}
		return &LiveSession{UserID: req.UserID, Username: req.Username, Machine: session.New(opts)}
	})
	if !created {
		if live.UserID != req.UserID {
			return nil, false, domain.ErrSessionNotFound
		}
		live.Machine.SetHooks(s.wrapHooks(attemptID, hooks))
		return live, true, nil
	}

	if err := live.Machine.Start(questions); err != nil {
		s.sessions.Delete(attemptID)
		return nil, false, fmt.Errorf("start session: %w", err)
	}
	s.logger.Info("session opened",
		zap.String("attemptId", attemptID),
		zap.String("userId", req.UserID),
		zap.String("topic", topic),
	)
	return live, false, nil
}

// Lookup returns a live session owned by userID.
func (s *ExamService) Lookup(attemptID, userID string) (*LiveSession, error) {
	live, ok := s.sessions.Get(attemptID)
	if !ok || live.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return live, nil
}

// Detach drops a disconnected client's hooks. The session keeps running
// until it terminates on its own or the client resumes it.
func (s *ExamService) Detach(live *LiveSession) {
	live.Machine.SetHooks(s.wrapHooks(live.Machine.AttemptID(), session.Hooks{}))
}

// Close stops pending evictions. Sessions themselves end on their own.
func (s *ExamService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.evictor {
		t.Stop()
		delete(s.evictor, id)
	}
}

func (s *ExamService) wrapHooks(attemptID string, hooks session.Hooks) session.Hooks {
	terminated := hooks.Terminated
	hooks.Terminated = func(cause domain.TerminationCause, summary domain.ResultSummary) {
		terminationsTotal.WithLabelValues(string(cause)).Inc()
		s.scheduleEviction(attemptID)
		if terminated != nil {
			terminated(cause, summary)
		}
	}
	return hooks
}

// scheduleEviction keeps a terminated session around for Retention so a
// reloaded client can still hand its result to the pipeline.
func (s *ExamService) scheduleEviction(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evictor[attemptID]; ok {
		return
	}
	s.evictor[attemptID] = time.AfterFunc(s.opts.Retention, func() {
		s.sessions.Delete(attemptID)
		s.mu.Lock()
		delete(s.evictor, attemptID)
		s.mu.Unlock()
	})
}

// proctorLease is the proctoring handle owned by one session.
type proctorLease struct {
	sessions  SessionRepository
	attemptID string
}

func (p proctorLease) Close() error {
	p.sessions.Release(p.attemptID)
	return nil
}
