package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type invoiceRepoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the Postgres repository. Create and Update write several
// statements and must run inside db.RunInTx.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &invoiceRepoPG{pool: pool}
}

func (r *invoiceRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const invoiceColumns = `id, tenant_id, patient_id, invoice_number, status, currency, subtotal, tax, total,
	issued_at, due_at, paid_at, notes, created_by, created_at, updated_at`

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		INSERT INTO patient_invoice (id, tenant_id, patient_id, invoice_number, status, currency,
			subtotal, tax, total, issued_at, due_at, paid_at, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		inv.ID, inv.TenantID, inv.PatientID, inv.Number, inv.Status, inv.Currency,
		inv.Subtotal, inv.Tax, inv.Total, inv.IssuedAt, inv.DueAt, inv.PaidAt, inv.Notes, inv.CreatedBy,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return err
	}
	return insertItems(ctx, q, inv)
}

func insertItems(ctx context.Context, q db.Queryable, inv *Invoice) error {
	for pos, it := range inv.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO invoice_line_item (id, invoice_id, service_type, description, quantity, unit_price, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, inv.ID, it.ServiceType, it.Description, it.Quantity, it.UnitPrice, pos)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	q := r.conn(ctx)
	inv, err := scanInvoice(q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM patient_invoice WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `
		SELECT id, service_type, description, quantity, unit_price
		FROM invoice_line_item WHERE invoice_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ID, &it.ServiceType, &it.Description, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	inv.recalculate()
	return inv, nil
}

func (r *invoiceRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Invoice, int, error) {
	sq := db.NewScopedQuery("patient_invoice", invoiceColumns, "tenant_id", f)
	if q.PatientID != nil {
		sq.Eq("patient_id", *q.PatientID)
	}
	if q.Status != "" {
		sq.Eq("status", q.Status)
	}
	sq.OrderBy("created_at DESC, id")
	return db.ListScoped(ctx, r.conn(ctx), sq, limit, offset, scanInvoice)
}

func (r *invoiceRepoPG) Update(ctx context.Context, inv *Invoice, replaceItems bool) error {
	q := r.conn(ctx)
	err := q.QueryRow(ctx, `
		UPDATE patient_invoice SET status = $3, currency = $4, subtotal = $5, tax = $6, total = $7,
			issued_at = $8, due_at = $9, paid_at = $10, notes = $11, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`,
		inv.ID, inv.TenantID, inv.Status, inv.Currency, inv.Subtotal, inv.Tax, inv.Total,
		inv.IssuedAt, inv.DueAt, inv.PaidAt, inv.Notes,
	).Scan(&inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tenancy.ErrNotFound
	}
	if err != nil || !replaceItems {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM invoice_line_item WHERE invoice_id = $1`, inv.ID); err != nil {
		return err
	}
	return insertItems(ctx, q, inv)
}

func (r *invoiceRepoPG) Outstanding(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0) FROM patient_invoice
		WHERE tenant_id = $1 AND patient_id = $2 AND status IN ('sent', 'overdue')`,
		tenantID, patientID).Scan(&sum)
	return sum, err
}

func (r *invoiceRepoPG) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_invoice SET status = 'overdue', updated_at = NOW()
		WHERE status = 'sent' AND due_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.PatientID, &inv.Number, &inv.Status, &inv.Currency,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.IssuedAt, &inv.DueAt, &inv.PaidAt, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenancy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
