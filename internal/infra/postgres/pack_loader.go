package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"mathrush/internal/domain"
)

// PackLoader loads question packs stored as JSONB in Postgres.
type PackLoader struct {
	pool *pgxpool.Pool
}

func NewPackLoader(pool *pgxpool.Pool) *PackLoader {
	return &PackLoader{pool: pool}
}

func (l *PackLoader) LoadPack(ctx context.Context, packID string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_packs WHERE id=$1`, packID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load pack: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal pack: %w", err)
	}
	return questions, nil
}
