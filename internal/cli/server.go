package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"proctored-quiz-service/internal/app"
	"proctored-quiz-service/internal/config"
	"proctored-quiz-service/internal/infra/memory"
	pginfra "proctored-quiz-service/internal/infra/postgres"
	redisinfra "proctored-quiz-service/internal/infra/redis"
	"proctored-quiz-service/internal/submit"
	transport "proctored-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServer(cmd.Context(), cfg, *port, logger)
		},
	}
}

// backends holds the optional external connections.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	db    *bun.DB
}

func (b backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func connect(ctx context.Context, cfg config.Config, logger *zap.Logger) (backends, error) {
	var b backends
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return b, fmt.Errorf("redis ping: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		db, err := openBun(cfg)
		if err != nil {
			b.Close()
			return b, err
		}
		b.db = db
		if err := migrateDB(ctx, db, logger); err != nil {
			b.Close()
			return b, err
		}
		b.pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return b, err
		}
	}
	return b, nil
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, logger *zap.Logger) error {
	b, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var loader memory.QuestionLoader
	if b.pool != nil {
		loader = pginfra.NewQuestionLoader(b.pool)
	} else {
		file := cfg.Quiz.QuestionsFile
		if file == "" {
			file = "config/questions.yaml"
		}
		bank, err := LoadSeedFile(file)
		if err != nil {
			return fmt.Errorf("postgres not configured and question bank unavailable: %w", err)
		}
		loader = memory.NewStaticQuestionLoader(bank.Bank())
		logger.Info("serving questions from file", zap.String("file", file), zap.Int("topics", len(bank.Topics)))
	}

	questionTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	if b.redis != nil {
		questions = redisinfra.NewQuestionRepository(b.redis, loader, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	var store app.ResultStore
	switch {
	case b.db != nil:
		store = pginfra.NewResultStore(b.db)
	case b.redis != nil:
		store = redisinfra.NewResultStore(b.redis)
	default:
		store = memory.NewResultStore()
	}

	sessionDuration := config.TTLDuration(cfg.Session.Duration, 10*time.Minute)
	retention := config.TTLDuration(cfg.Session.Retention, 30*time.Minute)
	var sessions app.SessionRepository
	if b.redis != nil {
		sessions = redisinfra.NewSessionStore(b.redis, sessionDuration+time.Minute)
	} else {
		sessions = memory.NewSessionStore()
	}

	results := app.NewResultsService(store, logger.Named("results"))
	exams := app.NewExamService(sessions, questions, app.ExamOptions{
		Duration:       sessionDuration,
		Retention:      retention,
		DisallowedKeys: cfg.Session.DisallowedKeys,
	}, logger.Named("session"))
	defer exams.Close()

	var api submit.ResultsAPI = app.NewLocalResultsAPI(results)
	if cfg.Submit.Mode == "http" {
		api = transport.NewResultsClient(cfg.Submit.BaseURL, nil)
	}
	submitOpts := submit.Options{
		MaxAttempts: cfg.Submit.MaxAttempts,
		RetryDelay:  config.TTLDuration(cfg.Submit.RetryDelay, submit.DefaultRetryDelay),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(app.Collectors()...)
	registry.MustRegister(submit.Collectors()...)
	registry.MustRegister(transport.Collectors()...)

	router := transport.NewRouter(transport.RouterDeps{
		Results:  transport.NewResultsHandler(results, questions, logger.Named("http")),
		WS:       transport.NewWSHandler(exams, api, submitOpts, logger.Named("ws")),
		Limiter:  transport.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		Registry: registry,

		TrustProxy: cfg.Server.TrustProxy,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting quiz service", zap.String("addr", server.Addr), zap.String("submitMode", cfg.Submit.Mode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
