package migrations

import (
	_ "embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_question_packs.sql
var createQuestionPacksSQL string

//go:embed 0002_seed_arithmetic_pack.sql
var seedArithmeticPackSQL string

var Migrations = migrate.NewMigrations()
