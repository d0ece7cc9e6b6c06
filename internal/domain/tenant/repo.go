package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
)

// Repository persists tenants. Lookups return tenancy.ErrNotFound for a
// missing row.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// GetByName matches case-insensitively.
	GetByName(ctx context.Context, name string) (*Tenant, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Tenant, error)
	NameTaken(ctx context.Context, name string) (bool, error)
	SubdomainExists(ctx context.Context, subdomain string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, int, error)
	ListActive(ctx context.Context) ([]*Tenant, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// SetPaymentCustomerIfUnset stores customerID unless one is already
	// linked, and returns the linked id either way.
	SetPaymentCustomerIfUnset(ctx context.Context, id uuid.UUID, customerID string) (string, error)
	// UpdateLocked holds an exclusive row lock while fn mutates the billing
	// fields of the tenant, then writes them back.
	UpdateLocked(ctx context.Context, id uuid.UUID, fn func(t *Tenant) error) (*Tenant, error)
	CountByPlan(ctx context.Context) (map[plan.Plan]int, error)
}
