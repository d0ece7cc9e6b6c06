package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Appointment, int, error)
	// Update writes schedule and status fields, matching on id and tenant.
	Update(ctx context.Context, a *Appointment) error
	// Overlaps reports whether clinicianID holds an active appointment in
	// tenantID intersecting [start, end), ignoring exclude.
	Overlaps(ctx context.Context, tenantID, clinicianID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error)
}
