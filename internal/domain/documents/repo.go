package documents

import (
	"context"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Repository interface {
	// Create inserts d with its preassigned ID.
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Document, int, error)
	Delete(ctx context.Context, id, tenantID uuid.UUID) error
}
