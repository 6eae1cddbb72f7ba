// Package tenantctx carries the caller identity that every engine operation
// is scoped by. It is deliberately thin: tenant/user provisioning lives
// outside this repository, so all this package defines is the pair of
// identifiers (and a request-scoped context carrier) that components
// receive from the outer HTTP/edge layer.
package tenantctx

import (
	"context"

	"github.com/google/uuid"
)

// TenantID identifies the owning organization. Every row in every
// component is scoped by one.
type TenantID uuid.UUID

func (t TenantID) String() string { return uuid.UUID(t).String() }

// IsNil reports whether the tenant identifier is unset.
func (t TenantID) IsNil() bool { return uuid.UUID(t) == uuid.Nil }

// UserID identifies the authenticated caller. Role resolution for a
// UserID is owned by capability.Resolver, never trusted from a caller
// supplied role string.
type UserID uuid.UUID

func (u UserID) String() string { return uuid.UUID(u).String() }

// Caller is the identity resolved by the outer edge layer and handed to
// every engine operation. Nothing in this repository authenticates a
// caller; it only ever trusts a Caller that has already been resolved
// from persisted state upstream.
type Caller struct {
	TenantID TenantID
	UserID   UserID
}

type callerKey struct{}

// WithCaller returns a context carrying the given Caller, for components
// that want it threaded implicitly (e.g. logging middleware).
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// FromContext retrieves a Caller previously attached with WithCaller.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
