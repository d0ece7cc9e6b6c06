package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/reporting"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Repository interface {
	Create(ctx context.Context, e *Event) error
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Event, int, error)
	// CountByType tallies one tenant's events since the given time.
	CountByType(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]int, error)
}

// Measures evaluates the dashboard figures for one tenant.
type Measures interface {
	Evaluate(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]reporting.Value, error)
}

// MeasureFunc adapts a function to Measures.
type MeasureFunc func(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]reporting.Value, error)

func (f MeasureFunc) Evaluate(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]reporting.Value, error) {
	return f(ctx, tenantID, since)
}
