// Package tenancy is the tenant isolation kernel. Every store that owns
// tenant-bound rows reads through Scope or ScopeFilter, resolves id lookups
// through Enforce or Resolve, and stamps new rows with Assign.
package tenancy

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     string    `json:"role"`
	// PlatformAdmin bypasses tenant scoping entirely.
	PlatformAdmin bool `json:"platform_admin"`
}

// HasTenant reports whether the actor is bound to a tenant.
func (a Actor) HasTenant() bool {
	return a.TenantID != uuid.Nil
}

// IsAdmin reports whether the actor holds the in-tenant admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == "admin"
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx. The zero Actor (no tenant, no
// platform capability) is returned when none is present; it can see nothing.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
