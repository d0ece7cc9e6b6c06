package audit

import (
	"context"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Repository persists audit entries. Entries are append-only.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Entry, int, error)
}
