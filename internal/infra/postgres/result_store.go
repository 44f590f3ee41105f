package postgres

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"proctored-quiz-service/internal/domain"
)

const createPartitionSQL = `
CREATE TABLE IF NOT EXISTS ? (
	id              BIGSERIAL   PRIMARY KEY,
	user_id         TEXT        NOT NULL,
	username        TEXT        NOT NULL,
	topic           TEXT        NOT NULL,
	total_questions INTEGER     NOT NULL,
	correct_answers INTEGER     NOT NULL,
	wrong_answers   INTEGER     NOT NULL,
	not_attempted   INTEGER     NOT NULL,
	time_taken      INTEGER     NOT NULL,
	attempt_id      TEXT        NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, attempt_id)
)`

// Partition table names only ever contain [a-z0-9_], so the LIKE pattern
// is the registry.
const listPartitionsSQL = `
SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_name LIKE 'results\_%'
ORDER BY table_name`

type resultRow struct {
	bun.BaseModel `bun:"alias:r"`

	UserID         string    `bun:"user_id,notnull"`
	Username       string    `bun:"username,notnull"`
	Topic          string    `bun:"topic,notnull"`
	TotalQuestions int       `bun:"total_questions"`
	CorrectAnswers int       `bun:"correct_answers"`
	WrongAnswers   int       `bun:"wrong_answers"`
	NotAttempted   int       `bun:"not_attempted"`
	TimeTaken      int       `bun:"time_taken"`
	AttemptID      string    `bun:"attempt_id,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func (r resultRow) record(partition string) domain.AttemptRecord {
	return domain.AttemptRecord{
		ResultSubmission: domain.ResultSubmission{
			UserID:         r.UserID,
			Username:       r.Username,
			Topic:          r.Topic,
			TotalQuestions: r.TotalQuestions,
			CorrectAnswers: r.CorrectAnswers,
			WrongAnswers:   r.WrongAnswers,
			NotAttempted:   r.NotAttempted,
			TimeTaken:      r.TimeTaken,
			AttemptID:      r.AttemptID,
		},
		Partition: partition,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// ResultStore keeps one table per partition (results_<key>). Tables are
// created on first write.
type ResultStore struct {
	db    *bun.DB
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	known map[string]struct{}
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db, clock: time.Now, known: make(map[string]struct{})}
}

// ensurePartition is the lookup-or-create step of the partition registry.
func (s *ResultStore) ensurePartition(ctx context.Context, name string) error {
	s.mu.RLock()
	_, ok := s.known[name]
	s.mu.RUnlock()
	if ok {
		return nil
	}
	_, err, _ := s.sf.Do(name, func() (interface{}, error) {
		if _, err := s.db.ExecContext(ctx, createPartitionSQL, bun.Ident(name)); err != nil {
			return nil, fmt.Errorf("create partition %s: %w", name, err)
		}
		s.mu.Lock()
		s.known[name] = struct{}{}
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

func (s *ResultStore) Save(ctx context.Context, displayName string, rec domain.AttemptRecord) (domain.AttemptRecord, error) {
	rec.Partition = domain.PartitionName(displayName)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	if err := s.ensurePartition(ctx, rec.Partition); err != nil {
		return rec, err
	}

	row := &resultRow{
		UserID:         rec.UserID,
		Username:       rec.Username,
		Topic:          rec.Topic,
		TotalQuestions: rec.TotalQuestions,
		CorrectAnswers: rec.CorrectAnswers,
		WrongAnswers:   rec.WrongAnswers,
		NotAttempted:   rec.NotAttempted,
		TimeTaken:      rec.TimeTaken,
		AttemptID:      rec.AttemptID,
		CreatedAt:      rec.CreatedAt,
	}
	res, err := s.db.NewInsert().
		Model(row).
		ModelTableExpr("?", bun.Ident(rec.Partition)).
		On("CONFLICT (user_id, attempt_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return rec, fmt.Errorf("insert into %s: %w", rec.Partition, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return rec, domain.ErrDuplicateAttempt
	}
	return rec, nil
}

func (s *ResultStore) ListAttemptIDs(ctx context.Context, userID string) ([]string, error) {
	records, err := s.QueryAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	ids := []string{}
	for _, rec := range records {
		if _, ok := seen[rec.AttemptID]; ok {
			continue
		}
		seen[rec.AttemptID] = struct{}{}
		ids = append(ids, rec.AttemptID)
	}
	return ids, nil
}

func (s *ResultStore) Query(ctx context.Context, userID, topic string) ([]domain.AttemptRecord, error) {
	return s.scan(ctx, userID, domain.TopicSlug(topic))
}

func (s *ResultStore) QueryAll(ctx context.Context, userID string) ([]domain.AttemptRecord, error) {
	return s.scan(ctx, userID, "")
}

func (s *ResultStore) Partitions(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.NewRaw(listPartitionsSQL).Scan(ctx, &names); err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *ResultStore) scan(ctx context.Context, userID, topicSlug string) ([]domain.AttemptRecord, error) {
	names, err := s.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = []domain.AttemptRecord{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		name := name
		g.Go(func() error {
			var rows []resultRow
			err := s.db.NewSelect().
				Model(&rows).
				ModelTableExpr("? AS r", bun.Ident(name)).
				Where("r.user_id = ?", userID).
				OrderExpr("r.created_at ASC").
				Scan(gctx)
			if err != nil {
				return fmt.Errorf("query %s: %w", name, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, row := range rows {
				if topicSlug != "" && domain.TopicSlug(row.Topic) != topicSlug {
					continue
				}
				out = append(out, row.record(name))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
