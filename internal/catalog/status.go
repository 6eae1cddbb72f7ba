// Package catalog implements the tenant-scoped status catalog: a
// read-mostly enumeration of application statuses with an
// (outcome_type, is_terminal) -> status_code mapping used by the
// decision engine to resolve presentation status after a transition.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// OutcomeType is the high-level outcome family of an application.
type OutcomeType string

const (
	OutcomeActive  OutcomeType = "ACTIVE"
	OutcomeHold    OutcomeType = "HOLD"
	OutcomeSuccess OutcomeType = "SUCCESS"
	OutcomeFailure OutcomeType = "FAILURE"
	OutcomeNeutral OutcomeType = "NEUTRAL"
)

// IsValid reports whether o is one of the closed set of outcome types.
func (o OutcomeType) IsValid() bool {
	switch o {
	case OutcomeActive, OutcomeHold, OutcomeSuccess, OutcomeFailure, OutcomeNeutral:
		return true
	default:
		return false
	}
}

// Status is a tenant-configurable application status.
type Status struct {
	TenantID    uuid.UUID
	StatusCode  string
	DisplayName string
	ActionCode  string
	IsTerminal  bool
	OutcomeType OutcomeType
	SortOrder   int
	IsActive    bool
}

// DefaultStatuses is the seed set installed for every new tenant. Order
// matters: it is also the default sort_order used at seed time.
var DefaultStatuses = []Status{
	{StatusCode: "ACTIVE", DisplayName: "Active", OutcomeType: OutcomeActive, IsTerminal: false, SortOrder: 0, IsActive: true},
	{StatusCode: "ON_HOLD", DisplayName: "On Hold", OutcomeType: OutcomeHold, IsTerminal: false, SortOrder: 1, IsActive: true},
	{StatusCode: "HIRED", DisplayName: "Hired", OutcomeType: OutcomeSuccess, IsTerminal: true, SortOrder: 2, IsActive: true},
	{StatusCode: "REJECTED", DisplayName: "Rejected", OutcomeType: OutcomeFailure, IsTerminal: true, SortOrder: 3, IsActive: true},
	{StatusCode: "WITHDRAWN", DisplayName: "Withdrawn", OutcomeType: OutcomeNeutral, IsTerminal: true, SortOrder: 4, IsActive: true},
}

var (
	// ErrNotFound is returned when no active status matches the query.
	ErrNotFound = errors.New("catalog: no matching status")
	// ErrExists is returned when a (tenant_id, status_code) pair already exists.
	ErrExists = errors.New("catalog: status code already exists")
)

// Validate checks structural invariants of a Status row.
func (s *Status) Validate() error {
	if s.StatusCode == "" {
		return fmt.Errorf("status_code is required")
	}
	if !s.OutcomeType.IsValid() {
		return fmt.Errorf("invalid outcome_type: %s", s.OutcomeType)
	}
	return nil
}

// Repository is the persistence boundary for the status catalog.
// Writes are restricted to callers holding MANAGE_SETTINGS at the
// caller layer (capability.Resolver); this interface performs no
// authorization itself.
type Repository interface {
	// List returns every status row for a tenant, ordered by sort_order.
	List(ctx context.Context, tenantID uuid.UUID) ([]Status, error)

	// Get returns a single status row, active or not.
	Get(ctx context.Context, tenantID uuid.UUID, statusCode string) (*Status, error)

	// ResolveForOutcome returns the active status with the lowest
	// sort_order matching (outcome_type, is_terminal). Returns
	// ErrNotFound if no active status matches.
	ResolveForOutcome(ctx context.Context, tenantID uuid.UUID, outcome OutcomeType, isTerminal bool) (*Status, error)

	// Create inserts a new status row. Returns ErrExists on a duplicate
	// (tenant_id, status_code).
	Create(ctx context.Context, s *Status) error

	// Deactivate marks a status inactive. Returns an error if any
	// application_pipeline_state row currently references it, since
	// that would orphan the row.
	Deactivate(ctx context.Context, tenantID uuid.UUID, statusCode string) error

	// SeedDefaults installs DefaultStatuses for a newly created tenant.
	// Idempotent: a tenant that already has rows is left untouched.
	SeedDefaults(ctx context.Context, tenantID uuid.UUID) error
}

// IsTerminal is a convenience query used by the decision engine; it is
// equivalent to Get(...).IsTerminal but named for the catalog's read API.
func IsTerminal(ctx context.Context, repo Repository, tenantID uuid.UUID, statusCode string) (bool, error) {
	s, err := repo.Get(ctx, tenantID, statusCode)
	if err != nil {
		return false, err
	}
	return s.IsTerminal, nil
}
