package tenancy

import (
	"fmt"

	"github.com/google/uuid"
)

// Filter is the query-side form of Scope. Repositories open every list query
// with Filter.Where so caller predicates, ordering and paging only ever apply
// to rows the actor may see.
type Filter struct {
	all      bool
	none     bool
	tenantID uuid.UUID
}

// ScopeFilter derives the row filter for an actor.
func ScopeFilter(a Actor) Filter {
	switch {
	case a.PlatformAdmin:
		return Filter{all: true}
	case !a.HasTenant():
		return Filter{none: true}
	default:
		return Filter{tenantID: a.TenantID}
	}
}

// Unrestricted reports whether the filter lets every row through.
func (f Filter) Unrestricted() bool {
	return f.all
}

// TenantID is the tenant the filter restricts to, or uuid.Nil.
func (f Filter) TenantID() uuid.UUID {
	return f.tenantID
}

// Where returns the opening WHERE clause for column along with its bind
// arguments. idx is the first free positional parameter; the returned next is
// the one after the clause's own parameters.
func (f Filter) Where(column string, idx int) (clause string, args []interface{}, next int) {
	switch {
	case f.all:
		return " WHERE TRUE", nil, idx
	case f.none:
		return " WHERE FALSE", nil, idx
	default:
		return fmt.Sprintf(" WHERE %s = $%d", column, idx), []interface{}{f.tenantID}, idx + 1
	}
}

// Allows reports whether a row owned by tenantID passes the filter.
func (f Filter) Allows(tenantID uuid.UUID) bool {
	switch {
	case f.all:
		return true
	case f.none:
		return false
	default:
		return tenantID == f.tenantID
	}
}
