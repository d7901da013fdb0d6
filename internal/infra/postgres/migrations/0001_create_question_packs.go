package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

// bun derives the migration name from this file's name, so the registration
// must live in a file matching NNNN_label.go.
func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createQuestionPacksSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS question_packs`)
			return err
		},
	)
}
