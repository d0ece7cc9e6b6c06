package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/reporting"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type eventRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const eventColumns = `id, tenant_id, user_id, event_type, resource, metadata, created_at`

func (r *eventRepoPG) Create(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO analytics_event (id, tenant_id, user_id, event_type, resource, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		e.ID, e.TenantID, e.UserID, e.Type, e.Resource, meta,
	).Scan(&e.CreatedAt)
}

func (r *eventRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Event, int, error) {
	sq := db.NewScopedQuery("analytics_event", eventColumns, "tenant_id", f)
	if q.Type != "" {
		sq.Eq("event_type", q.Type)
	}
	if q.UserID != nil {
		sq.Eq("user_id", *q.UserID)
	}
	if q.Since != nil {
		sq.Since("created_at", *q.Since)
	}
	sq.OrderBy("created_at DESC")
	return db.ListScoped(ctx, r.conn(ctx), sq, limit, offset, scanEvent)
}

func (r *eventRepoPG) CountByType(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT event_type, COUNT(*) FROM analytics_event
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY event_type`, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	if err := row.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Type, &e.Resource, &e.Metadata, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// NewMeasures evaluates reporting.PredefinedMeasures against Postgres.
func NewMeasures(pool *pgxpool.Pool) Measures {
	return MeasureFunc(func(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]reporting.Value, error) {
		return reporting.Evaluate(ctx, db.Conn(ctx, pool), tenantID, since, reporting.PredefinedMeasures)
	})
}
