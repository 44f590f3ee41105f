package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"proctored-quiz-service/internal/domain"
)

// QuestionLoader loads a topic's questions from Postgres, ordered by id.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, topic string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, question, options, answer FROM questions WHERE topic=$1 ORDER BY id`, topic)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q   = domain.Question{Topic: topic}
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &raw, &q.Answer); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options of question %d: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrTopicNotFound
	}
	return questions, nil
}
