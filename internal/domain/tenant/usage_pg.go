package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
)

// UsageCounter counts a tenant's plan-limited resources.
type UsageCounter interface {
	Count(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (int, error)
}

// UsageFunc adapts a function to UsageCounter.
type UsageFunc func(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (int, error)

func (f UsageFunc) Count(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (int, error) {
	return f(ctx, tenantID, r)
}

var usageTables = map[plan.Resource]string{
	plan.Users:        "app_user",
	plan.Patients:     "patient",
	plan.Appointments: "appointment",
}

type usageCounterPG struct {
	pool *pgxpool.Pool
}

func NewUsageCounter(pool *pgxpool.Pool) UsageCounter {
	return &usageCounterPG{pool: pool}
}

func (u *usageCounterPG) Count(ctx context.Context, tenantID uuid.UUID, r plan.Resource) (int, error) {
	table, ok := usageTables[r]
	if !ok {
		return 0, fmt.Errorf("unknown resource %q", r)
	}
	var n int
	err := db.Conn(ctx, u.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

// Usage counts every limited resource for tenantID.
func Usage(ctx context.Context, c UsageCounter, tenantID uuid.UUID) (map[string]int, error) {
	out := make(map[string]int, len(usageTables))
	for _, r := range []plan.Resource{plan.Users, plan.Patients, plan.Appointments} {
		n, err := c.Count(ctx, tenantID, r)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", r, err)
		}
		out[string(r)] = n
	}
	return out, nil
}
