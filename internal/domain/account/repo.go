package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Repository persists users. Lookups by id or username are unscoped and
// return tenancy.ErrNotFound; callers gate them with tenancy.Resolve.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByUsername matches case-insensitively.
	GetByUsername(ctx context.Context, username string) (*User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*User, int, error)
	CountInTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
	ListActiveAdmins(ctx context.Context, tenantID uuid.UUID) ([]*User, error)
	// Activate flips a pending user to active. A user that is missing or
	// already active yields tenancy.ErrNotFound.
	Activate(ctx context.Context, id uuid.UUID) error
	// DeletePending removes a user that was never activated.
	DeletePending(ctx context.Context, id uuid.UUID) error
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
