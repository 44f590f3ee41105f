package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/infra/postgres"
)

// SeedFile is the YAML layout accepted by the seed command:
//
//	topics:
//	  c_programming:
//	    - id: 1
//	      question: "Size of char?"
//	      options: ["1", "2", "4"]
//	      answer: "1"
type SeedFile struct {
	Topics map[string][]domain.Question `yaml:"topics"`
}

// LoadSeedFile parses a question bank file.
func LoadSeedFile(path string) (SeedFile, error) {
	var f SeedFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Topics) == 0 {
		return f, fmt.Errorf("%s: no topics", path)
	}
	return f, nil
}

// Bank returns the questions keyed by topic slug with each question's Topic
// set, ready for an in-memory loader.
func (f SeedFile) Bank() map[string][]domain.Question {
	bank := make(map[string][]domain.Question, len(f.Topics))
	for name, qs := range f.Topics {
		slug := domain.TopicSlug(name)
		for _, q := range qs {
			q.Topic = slug
			bank[slug] = append(bank[slug], q)
		}
	}
	return bank
}

// NewSeedCmd loads question sets into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load topic question sets into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			seed, err := LoadSeedFile(file)
			if err != nil {
				return err
			}
			db, err := openBun(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrateDB(cmd.Context(), db, logger); err != nil {
				return err
			}
			return seedQuestions(cmd.Context(), db, seed, logger)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/questions.yaml", "question bank YAML file")
	return cmd
}

func seedQuestions(ctx context.Context, db bun.IDB, seed SeedFile, logger *zap.Logger) error {
	topics := make([]string, 0, len(seed.Topics))
	for topic := range seed.Topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, topic := range topics {
			n, err := postgres.SeedQuestions(ctx, tx, topic, seed.Topics[topic])
			if err != nil {
				return err
			}
			logger.Info("topic seeded", zap.String("topic", domain.TopicSlug(topic)), zap.Int("questions", n))
		}
		return nil
	})
}
