package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type auditRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const entryColumns = `id, tenant_id, user_id, action, resource, resource_id,
	details, ip_address, request_id, created_at`

func (r *auditRepoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_entry (
			id, tenant_id, user_id, action, resource, resource_id,
			details, ip_address, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		e.ID, e.TenantID, e.UserID, e.Action, e.Resource, e.ResourceID,
		e.Details, e.IPAddress, e.RequestID,
	).Scan(&e.CreatedAt)
}

func (r *auditRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Entry, int, error) {
	sq := db.NewScopedQuery("audit_entry", entryColumns, "tenant_id", f)
	if q.Action != "" {
		sq.Eq("action", q.Action)
	}
	if q.Resource != "" {
		sq.Eq("resource", q.Resource)
	}
	if q.UserID != nil {
		sq.Eq("user_id", *q.UserID)
	}
	if q.Since != nil {
		sq.Since("created_at", *q.Since)
	}
	sq.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, sq.CountSQL(), sq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, sq.DataSQL(limit, offset), sq.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID,
		&e.Details, &e.IPAddress, &e.RequestID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
