package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/catalog"
)

// Repository implements catalog.Repository backed by PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL-backed status catalog repository.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(zap.String("component", "catalog-postgres-repository")),
	}
}

const listQuery = `
SELECT tenant_id, status_code, display_name, action_code, is_terminal, outcome_type, sort_order, is_active
FROM tenant_application_statuses
WHERE tenant_id = $1
ORDER BY sort_order ASC
`

func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]catalog.Status, error) {
	rows, err := r.pool.Query(ctx, listQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	var statuses []catalog.Status
	for rows.Next() {
		var s catalog.Status
		if err := rows.Scan(&s.TenantID, &s.StatusCode, &s.DisplayName, &s.ActionCode, &s.IsTerminal, &s.OutcomeType, &s.SortOrder, &s.IsActive); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return statuses, nil
}

const getQuery = `
SELECT tenant_id, status_code, display_name, action_code, is_terminal, outcome_type, sort_order, is_active
FROM tenant_application_statuses
WHERE tenant_id = $1 AND status_code = $2
`

func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, statusCode string) (*catalog.Status, error) {
	s := &catalog.Status{}
	err := r.pool.QueryRow(ctx, getQuery, tenantID, statusCode).Scan(
		&s.TenantID, &s.StatusCode, &s.DisplayName, &s.ActionCode, &s.IsTerminal, &s.OutcomeType, &s.SortOrder, &s.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("get status: %w", err)
	}
	return s, nil
}

const resolveQuery = `
SELECT tenant_id, status_code, display_name, action_code, is_terminal, outcome_type, sort_order, is_active
FROM tenant_application_statuses
WHERE tenant_id = $1 AND outcome_type = $2 AND is_terminal = $3 AND is_active = true
ORDER BY sort_order ASC
LIMIT 1
`

func (r *Repository) ResolveForOutcome(ctx context.Context, tenantID uuid.UUID, outcome catalog.OutcomeType, isTerminal bool) (*catalog.Status, error) {
	s := &catalog.Status{}
	err := r.pool.QueryRow(ctx, resolveQuery, tenantID, outcome, isTerminal).Scan(
		&s.TenantID, &s.StatusCode, &s.DisplayName, &s.ActionCode, &s.IsTerminal, &s.OutcomeType, &s.SortOrder, &s.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("resolve status for outcome: %w", err)
	}
	return s, nil
}

const createQuery = `
INSERT INTO tenant_application_statuses (tenant_id, status_code, display_name, action_code, is_terminal, outcome_type, sort_order, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (r *Repository) Create(ctx context.Context, s *catalog.Status) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, createQuery, s.TenantID, s.StatusCode, s.DisplayName, s.ActionCode, s.IsTerminal, s.OutcomeType, s.SortOrder, s.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrExists
		}
		return fmt.Errorf("create status: %w", err)
	}
	return nil
}

const deactivateQuery = `
UPDATE tenant_application_statuses SET is_active = false
WHERE tenant_id = $1 AND status_code = $2
`

const orphanCheckQuery = `
SELECT EXISTS(SELECT 1 FROM application_pipeline_state WHERE tenant_id = $1 AND status = $2)
`

func (r *Repository) Deactivate(ctx context.Context, tenantID uuid.UUID, statusCode string) error {
	var inUse bool
	if err := r.pool.QueryRow(ctx, orphanCheckQuery, tenantID, statusCode).Scan(&inUse); err != nil {
		return fmt.Errorf("check status usage: %w", err)
	}
	if inUse {
		return fmt.Errorf("status %s is referenced by at least one application and cannot be deactivated", statusCode)
	}

	tag, err := r.pool.Exec(ctx, deactivateQuery, tenantID, statusCode)
	if err != nil {
		return fmt.Errorf("deactivate status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

const seedCheckQuery = `SELECT EXISTS(SELECT 1 FROM tenant_application_statuses WHERE tenant_id = $1)`

func (r *Repository) SeedDefaults(ctx context.Context, tenantID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, seedCheckQuery, tenantID).Scan(&exists); err != nil {
		return fmt.Errorf("check existing statuses: %w", err)
	}
	if exists {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range catalog.DefaultStatuses {
		s.TenantID = tenantID
		if _, err := tx.Exec(ctx, createQuery, s.TenantID, s.StatusCode, s.DisplayName, s.ActionCode, s.IsTerminal, s.OutcomeType, s.SortOrder, s.IsActive); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("seed status %s: %w", s.StatusCode, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}

	r.logger.Info("seeded default statuses", zap.String("tenant_id", tenantID.String()))
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
