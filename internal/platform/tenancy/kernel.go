package tenancy

import (
	"errors"

	"github.com/google/uuid"
)

// ErrAccessDenied is the single denial signal for cross-tenant access and for
// lookups of rows that do not exist.
var ErrAccessDenied = errors.New("access denied")

// ErrNotFound is returned by repositories when a row does not exist. Callers
// outside the store layer only ever see it folded into ErrAccessDenied.
var ErrNotFound = errors.New("not found")

// Owned is implemented by every tenant-bound entity.
type Owned interface {
	OwnerTenant() uuid.UUID
	SetOwnerTenant(id uuid.UUID)
}

// Scope returns the elements of items the actor may observe.
func Scope[T Owned](items []T, a Actor) []T {
	if a.PlatformAdmin {
		return items
	}
	out := make([]T, 0, len(items))
	if !a.HasTenant() {
		return out
	}
	for _, it := range items {
		if it.OwnerTenant() == a.TenantID {
			out = append(out, it)
		}
	}
	return out
}

// Enforce fails with ErrAccessDenied if e belongs to a tenant other than the
// actor's. An entity with no tenant yet passes.
func Enforce[T Owned](e T, a Actor) (T, error) {
	if a.PlatformAdmin {
		return e, nil
	}
	owner := e.OwnerTenant()
	if owner != uuid.Nil && owner != a.TenantID {
		var zero T
		return zero, ErrAccessDenied
	}
	return e, nil
}

// Assign stamps e with the actor's tenant if it has none. An existing tenant
// is never replaced.
func Assign[T Owned](e T, a Actor) T {
	if e.OwnerTenant() == uuid.Nil && a.HasTenant() {
		e.SetOwnerTenant(a.TenantID)
	}
	return e
}

// Resolve gates the result of an unscoped lookup by id. Not-found and
// wrong-tenant come back as the same ErrAccessDenied; other errors pass through.
func Resolve[T Owned](e T, err error, a Actor) (T, error) {
	var zero T
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, ErrAccessDenied
		}
		return zero, err
	}
	return Enforce(e, a)
}

// Require returns the actor from the request-scoped value, or ErrAccessDenied
// when a non-platform actor has no tenant to act in.
func Require(a Actor, ok bool) (Actor, error) {
	if !ok {
		return Actor{}, ErrAccessDenied
	}
	if !a.PlatformAdmin && !a.HasTenant() {
		return Actor{}, ErrAccessDenied
	}
	return a, nil
}
