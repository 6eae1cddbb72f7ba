package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/capability"
)

// Repository implements capability.Repository backed by PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL-backed capability grant repository.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger.With(zap.String("component", "capability-postgres-repository")),
	}
}

const grantsQuery = `
SELECT capability FROM role_capabilities
WHERE tenant_id = $1 AND role_name = $2
`

func (r *Repository) Grants(ctx context.Context, tenantID uuid.UUID, role string) ([]string, error) {
	rows, err := r.pool.Query(ctx, grantsQuery, tenantID, role)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, c)
	}
	return grants, rows.Err()
}

const grantQuery = `
INSERT INTO role_capabilities (tenant_id, role_name, capability)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id, role_name, capability) DO NOTHING
`

func (r *Repository) Grant(ctx context.Context, tenantID uuid.UUID, role, cap string) error {
	_, err := r.pool.Exec(ctx, grantQuery, tenantID, role, cap)
	if err != nil {
		return fmt.Errorf("grant capability: %w", err)
	}
	return nil
}

const revokeQuery = `
DELETE FROM role_capabilities WHERE tenant_id = $1 AND role_name = $2 AND capability = $3
`

func (r *Repository) Revoke(ctx context.Context, tenantID uuid.UUID, role, cap string) error {
	_, err := r.pool.Exec(ctx, revokeQuery, tenantID, role, cap)
	if err != nil {
		return fmt.Errorf("revoke capability: %w", err)
	}
	return nil
}

const seedCheckQuery = `SELECT EXISTS(SELECT 1 FROM role_capabilities WHERE tenant_id = $1)`

func (r *Repository) SeedDefaults(ctx context.Context, tenantID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, seedCheckQuery, tenantID).Scan(&exists); err != nil {
		return fmt.Errorf("check existing grants: %w", err)
	}
	if exists {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for role, caps := range capability.DefaultCapabilitySets {
		for _, c := range caps {
			if _, err := tx.Exec(ctx, grantQuery, tenantID, role, c); err != nil {
				return fmt.Errorf("seed grant %s/%s: %w", role, c, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}

	r.logger.Info("seeded default capabilities", zap.String("tenant_id", tenantID.String()))
	return nil
}
