package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/pipeline"
)

// Repository implements pipeline.Repository backed by PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL-backed pipeline/stage repository.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(zap.String("component", "pipeline-postgres-repository")),
	}
}

const getStageQuery = `
SELECT id, pipeline_id, name, order_index, stage_type, conducted_by
FROM pipeline_stages
WHERE tenant_id = $1 AND id = $2
`

func (r *Repository) GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (*pipeline.Stage, error) {
	s := &pipeline.Stage{}
	err := r.pool.QueryRow(ctx, getStageQuery, tenantID, stageID).Scan(
		&s.ID, &s.PipelineID, &s.Name, &s.OrderIndex, &s.StageType, &s.ConductedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrStageNotFound
		}
		return nil, fmt.Errorf("get stage: %w", err)
	}
	return s, nil
}

const nextStageQuery = `
SELECT id, pipeline_id, name, order_index, stage_type, conducted_by
FROM pipeline_stages
WHERE tenant_id = $1 AND pipeline_id = $2 AND order_index = $3
`

func (r *Repository) NextStage(ctx context.Context, tenantID uuid.UUID, current *pipeline.Stage) (*pipeline.Stage, error) {
	s := &pipeline.Stage{}
	err := r.pool.QueryRow(ctx, nextStageQuery, tenantID, current.PipelineID, current.OrderIndex+1).Scan(
		&s.ID, &s.PipelineID, &s.Name, &s.OrderIndex, &s.StageType, &s.ConductedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrNoNextStage
		}
		return nil, fmt.Errorf("get next stage: %w", err)
	}
	return s, nil
}

const frozenCheckQuery = `SELECT EXISTS(SELECT 1 FROM pipeline_stage_list_freezes WHERE tenant_id = $1 AND pipeline_id = $2)`

func (r *Repository) IsStageListFrozen(ctx context.Context, tenantID, pipelineID uuid.UUID) (bool, error) {
	var frozen bool
	if err := r.pool.QueryRow(ctx, frozenCheckQuery, tenantID, pipelineID).Scan(&frozen); err != nil {
		return false, fmt.Errorf("check stage list frozen: %w", err)
	}
	return frozen, nil
}

const freezeQuery = `
INSERT INTO pipeline_stage_list_freezes (tenant_id, pipeline_id, frozen_at)
VALUES ($1, $2, now())
ON CONFLICT (tenant_id, pipeline_id) DO NOTHING
`

func (r *Repository) FreezeStageList(ctx context.Context, tenantID, pipelineID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, freezeQuery, tenantID, pipelineID); err != nil {
		return fmt.Errorf("freeze stage list: %w", err)
	}
	return nil
}
