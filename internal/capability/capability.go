// Package capability implements the capability resolver: a
// tenant-scoped permission lookup from (tenant, role) -> capability set.
// The resolver never trusts a role supplied by the caller; it always
// looks the role up from the identity store first.
package capability

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Well-known capability tokens. The set is open (capabilities are
// stored as free strings to let tenants define feedback:* style
// wildcards) but these are the ones seeded by default.
const (
	AdvanceStage         = "ADVANCE_STAGE"
	TerminateApplication = "TERMINATE_APPLICATION"
	ChangeStatus         = "CHANGE_STATUS"
	ProvideFeedback      = "PROVIDE_FEEDBACK"
	ViewTracking         = "VIEW_TRACKING"
	ManageSettings       = "MANAGE_SETTINGS"
	OverrideFlow         = "OVERRIDE_FLOW"
	FeedbackWildcard     = "feedback:*"
)

// DefaultCapabilitySets maps a default role name to the capabilities it
// is seeded with on tenant creation. SeedDefaults installs this table
// as is; internal/config.EngineConfig.SeedCapabilities is not applied
// to it.
var DefaultCapabilitySets = map[string][]string{
	"admin": {
		AdvanceStage, TerminateApplication, ChangeStatus, ProvideFeedback,
		ViewTracking, ManageSettings, OverrideFlow, FeedbackWildcard,
	},
	"recruiter": {
		AdvanceStage, ChangeStatus, ProvideFeedback, ViewTracking, FeedbackWildcard,
	},
	"interviewer": {
		ProvideFeedback, ViewTracking, FeedbackWildcard,
	},
	"viewer": {
		ViewTracking,
	},
}

// ErrRoleNotFound is returned when the identity store has no role on
// file for a user within a tenant.
var ErrRoleNotFound = errors.New("capability: role not found for user")

// IdentityStore resolves a user's role within a tenant. It is the
// external identity collaborator; this package never
// persists users or roles itself, only consumes this interface.
type IdentityStore interface {
	RoleForUser(ctx context.Context, tenantID, userID uuid.UUID) (string, error)
}

// Repository is the persistence boundary for the (tenant, role,
// capability) grant table.
type Repository interface {
	// Grants returns every capability held by a role within a tenant.
	Grants(ctx context.Context, tenantID uuid.UUID, role string) ([]string, error)

	// Grant adds a capability to a role. Idempotent.
	Grant(ctx context.Context, tenantID uuid.UUID, role, capability string) error

	// Revoke removes a capability from a role.
	Revoke(ctx context.Context, tenantID uuid.UUID, role, capability string) error

	// SeedDefaults installs DefaultCapabilitySets for a newly created
	// tenant. Idempotent.
	SeedDefaults(ctx context.Context, tenantID uuid.UUID) error
}

// Resolver answers "does user U hold capability X in tenant T?" by
// resolving U's role from the identity store and checking the grant
// table. This is the only capability-checking entry point the rest of
// the engine should call.
type Resolver struct {
	identity IdentityStore
	grants   Repository
}

// NewResolver constructs a Resolver.
func NewResolver(identity IdentityStore, grants Repository) *Resolver {
	return &Resolver{identity: identity, grants: grants}
}

// Has reports whether userID holds capability in tenantID. The role is
// always read from the identity store; callers cannot pass a role in
// to bypass that lookup.
func (r *Resolver) Has(ctx context.Context, tenantID, userID uuid.UUID, capability string) (bool, error) {
	role, err := r.identity.RoleForUser(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}

	grants, err := r.grants.Grants(ctx, tenantID, role)
	if err != nil {
		return false, err
	}

	for _, g := range grants {
		if g == capability {
			return true, nil
		}
		if matchesWildcard(g, capability) {
			return true, nil
		}
	}
	return false, nil
}

// matchesWildcard supports "namespace:*" grants matching
// "namespace:anything", e.g. feedback:* matching feedback:technical.
func matchesWildcard(grant, capability string) bool {
	if len(grant) < 2 || grant[len(grant)-1] != '*' {
		return false
	}
	prefix := grant[:len(grant)-1]
	if len(capability) < len(prefix) {
		return false
	}
	return capability[:len(prefix)] == prefix
}
