package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"proctored-quiz-service/internal/domain"
)

// QuestionLoader fetches a topic's questions from the question bank.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, topic string) ([]domain.Question, error)
}

// QuestionRepository caches question sets with TTL to avoid repeated DB hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, topic string) ([]domain.Question, error) {
	if qs, ok := r.cached(topic); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(topic, func() (interface{}, error) {
		if qs, ok := r.cached(topic); ok {
			return qs, nil
		}

		questions, err := r.loader.LoadQuestions(ctx, topic)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[topic] = cachedQuestions{
			questions: questions,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) cached(topic string) ([]domain.Question, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[topic]; ok && entry.expiresAt.After(now) {
		return entry.questions, true
	}
	return nil, false
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	topics map[string][]domain.Question
}

func NewStaticQuestionLoader(topics map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{topics: topics}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, topic string) ([]domain.Question, error) {
	if qs, ok := l.topics[topic]; ok && len(qs) > 0 {
		return qs, nil
	}
	return nil, domain.ErrTopicNotFound
}
