// Package postgres implements capability.IdentityStore and
// evaluation.HRResolver against the tenant/user/job reference tables.
// Those tables are owned by out-of-scope tenant and job CRUD; this
// package only ever selects from them.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNoOwner is returned when a tenant row has no resolvable owner.
var ErrNoOwner = errors.New("identity: tenant has no owner")

// RoleResolver implements capability.IdentityStore.
type RoleResolver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRoleResolver creates a PostgreSQL-backed capability.IdentityStore.
func NewRoleResolver(pool *pgxpool.Pool, logger *zap.Logger) *RoleResolver {
	return &RoleResolver{
		pool:   pool,
		logger: logger.With(zap.String("component", "identity-role-resolver")),
	}
}

const roleForUserQuery = `
SELECT role_name FROM tenant_user_roles WHERE tenant_id = $1 AND user_id = $2
`

// RoleForUser implements capability.IdentityStore.
func (r *RoleResolver) RoleForUser(ctx context.Context, tenantID, userID uuid.UUID) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, roleForUserQuery, tenantID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("identity: no role for user %s in tenant %s", userID, tenantID)
	}
	if err != nil {
		return "", fmt.Errorf("query role for user: %w", err)
	}
	return role, nil
}

// HRResolver implements evaluation.HRResolver: it resolves the job
// creator if still active in the tenant, else the tenant owner.
type HRResolver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewHRResolver creates a PostgreSQL-backed evaluation.HRResolver.
func NewHRResolver(pool *pgxpool.Pool, logger *zap.Logger) *HRResolver {
	return &HRResolver{
		pool:   pool,
		logger: logger.With(zap.String("component", "identity-hr-resolver")),
	}
}

const jobCreatorQuery = `
SELECT j.created_by, j.is_active
FROM application_pipeline_state s
JOIN jobs j ON j.id = s.job_id
WHERE s.tenant_id = $1 AND s.application_id = $2
`

const tenantOwnerQuery = `SELECT owner_user_id FROM tenants WHERE id = $1`

// ResolveHRParticipant implements evaluation.HRResolver.
func (r *HRResolver) ResolveHRParticipant(ctx context.Context, tenantID, applicationID uuid.UUID) (uuid.UUID, error) {
	var createdBy uuid.UUID
	var isActive bool
	err := r.pool.QueryRow(ctx, jobCreatorQuery, tenantID, applicationID).Scan(&createdBy, &isActive)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("query job creator: %w", err)
	}
	if err == nil && isActive {
		return createdBy, nil
	}

	var owner uuid.UUID
	err = r.pool.QueryRow(ctx, tenantOwnerQuery, tenantID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNoOwner
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("query tenant owner: %w", err)
	}
	return owner, nil
}
