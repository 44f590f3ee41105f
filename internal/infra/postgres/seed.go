package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"proctored-quiz-service/internal/domain"
)

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	Topic    string   `bun:"topic,pk"`
	ID       int      `bun:"id,pk"`
	Question string   `bun:"question,notnull"`
	Options  []string `bun:"options,type:jsonb,notnull"`
	Answer   string   `bun:"answer,notnull"`
}

// SeedQuestions upserts a topic's question set. Existing rows with the same
// (topic, id) are overwritten.
func SeedQuestions(ctx context.Context, db bun.IDB, topic string, questions []domain.Question) (int, error) {
	if len(questions) == 0 {
		return 0, nil
	}
	topic = domain.TopicSlug(topic)
	rows := make([]questionRow, 0, len(questions))
	for _, q := range questions {
		if !q.HasOption(q.Answer) {
			return 0, fmt.Errorf("%w: question %d of %s has answer %q outside its options", domain.ErrOptionNotFound, q.ID, topic, q.Answer)
		}
		rows = append(rows, questionRow{Topic: topic, ID: q.ID, Question: q.Prompt, Options: q.Options, Answer: q.Answer})
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (topic, id) DO UPDATE").
		Set("question = EXCLUDED.question").
		Set("options = EXCLUDED.options").
		Set("answer = EXCLUDED.answer").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", topic, err)
	}
	return len(rows), nil
}
