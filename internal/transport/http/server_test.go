package http

import (
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"proctored-quiz-service/internal/app"
	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/infra/memory"
	"proctored-quiz-service/internal/session"
	"proctored-quiz-service/internal/submit"
)

type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

type testServer struct {
	*httptest.Server
	results *app.ResultsService
	exams   *app.ExamService
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	return newTestServerWith(t, RouterDeps{Limiter: limiter})
}

// newTestServerWith fills in the handlers and registry of deps.
func newTestServerWith(t *testing.T, deps RouterDeps) *testServer {
	t.Helper()
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(sampleTopics()), time.Minute)
	results := app.NewResultsService(memory.NewResultStore(), nil)
	exams := app.NewExamService(memory.NewSessionStore(), questions, app.ExamOptions{
		Duration:  time.Minute,
		Retention: time.Hour,
		NewTicker: func(time.Duration) session.Ticker { return idleTicker{ch: make(chan time.Time)} },
		NewRand:   func() *rand.Rand { return rand.New(rand.NewSource(7)) },
	}, nil)

	registry := prometheus.NewRegistry()
	registry.MustRegister(Collectors()...)

	ws := NewWSHandler(exams, app.NewLocalResultsAPI(results), submit.Options{RetryDelay: time.Millisecond}, nil)
	deps.Results = NewResultsHandler(results, questions, nil)
	deps.WS = ws
	deps.Registry = registry
	router := NewRouter(deps)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		exams.Close()
	})
	return &testServer{Server: srv, results: results, exams: exams}
}

func sampleTopics() map[string][]domain.Question {
	return map[string][]domain.Question{
		"c_programming": {
			{ID: 1, Topic: "c_programming", Prompt: "Size of char?", Options: []string{"1", "2", "4"}, Answer: "1"},
			{ID: 2, Topic: "c_programming", Prompt: "Entry point?", Options: []string{"main", "start"}, Answer: "main"},
			{ID: 3, Topic: "c_programming", Prompt: "Format for int?", Options: []string{"%d", "%s"}, Answer: "%d"},
		},
	}
}
