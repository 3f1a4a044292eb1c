package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"reading-study-service/internal/domain"
)

// DefinitionLoader loads study definition JSONB from Postgres.
type DefinitionLoader struct {
	pool *pgxpool.Pool
}

func NewDefinitionLoader(pool *pgxpool.Pool) *DefinitionLoader {
	return &DefinitionLoader{pool: pool}
}

func (l *DefinitionLoader) LoadDefinition(ctx context.Context, studyID string) (domain.StudyDefinition, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM study_definitions WHERE id=$1`, studyID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StudyDefinition{}, fmt.Errorf("load definition %s: %w", studyID, domain.ErrStudyNotFound)
	}
	if err != nil {
		return domain.StudyDefinition{}, fmt.Errorf("load definition: %w", err)
	}
	var def domain.StudyDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.StudyDefinition{}, fmt.Errorf("unmarshal definition: %w", err)
	}
	return def, nil
}
