package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps are the handlers and middleware the router mounts.
type RouterDeps struct {
	Results  *ResultsHandler
	WS       *WSHandler
	Limiter  *RateLimiter
	Registry *prometheus.Registry
	// TrustProxy honours X-Forwarded-For / X-Real-IP. Only enable it behind
	// a proxy that overwrites those headers; the rate limiter keys on the
	// resulting address.
	TrustProxy bool
}

// NewRouter mounts the API at the root and again under /v1.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if deps.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	if deps.WS != nil {
		r.Get("/ws", deps.WS.ServeWS)
	}

	api := func(r chi.Router) {
		r.With(limit(deps.Limiter)).Post("/results", deps.Results.SaveResult)
		r.Get("/results/check/{userId}", deps.Results.CheckAttempts)
		r.Get("/results/{userId}/{topicSlug}", deps.Results.TopicStats)
		r.Get("/chart/{userId}", deps.Results.Chart)
		r.Get("/questions/{topic}", deps.Results.Questions)
	}
	api(r)
	r.Route("/v1", api)
	return r
}

func limit(l *RateLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}
