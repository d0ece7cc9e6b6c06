package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Patient, int, error)
	// Update writes the demographic fields of p. The owning tenant is part
	// of the match, never of the write.
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id, tenantID uuid.UUID) error
}
