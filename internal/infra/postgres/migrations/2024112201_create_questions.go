package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const createQuestionsSQL = `
CREATE TABLE IF NOT EXISTS questions (
	topic    TEXT    NOT NULL,
	id       INTEGER NOT NULL,
	question TEXT    NOT NULL,
	options  JSONB   NOT NULL,
	answer   TEXT    NOT NULL,
	PRIMARY KEY (topic, id)
)`

// Migrations holds the static schema. Result partitions are created at
// runtime by the result store.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createQuestionsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS questions`)
			return err
		},
	)
}
