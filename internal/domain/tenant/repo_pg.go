package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type tenantRepoPG struct {
	pool *pgxpool.Pool
	tx   db.TxRunner
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &tenantRepoPG{pool: pool, tx: db.NewTxRunner(pool)}
}

func (r *tenantRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const tenantColumns = `id, name, subdomain, plan, specialization,
	trial_started_at, trial_ended_at, payment_customer_id, payment_subscription_id,
	is_active, created_at, updated_at`

func (r *tenantRepoPG) Create(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO tenant (
			id, name, subdomain, plan, specialization,
			trial_started_at, trial_ended_at, payment_customer_id, payment_subscription_id,
			is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Subdomain, t.Plan, t.Specialization,
		t.TrialStartedAt, t.TrialEndedAt, t.PaymentCustomerID, t.PaymentSubscriptionID,
		t.IsActive,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// Lost a race on the name or subdomain with a concurrent create.
		return apperr.Invalid("tenant_name",
			fmt.Sprintf("Company '%s' already exists. Please join it or choose a different name.", t.Name))
	}
	return err
}

func (r *tenantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return r.scanTenant(r.conn(ctx).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenant WHERE id = $1`, id))
}

func (r *tenantRepoPG) GetByName(ctx context.Context, name string) (*Tenant, error) {
	return r.scanTenant(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenant WHERE LOWER(name) = LOWER($1)`, name))
}

func (r *tenantRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("GetForUpdate requires a transaction")
	}
	return r.scanTenant(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenant WHERE id = $1 FOR UPDATE`, id))
}

func (r *tenantRepoPG) NameTaken(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenant WHERE LOWER(name) = LOWER($1))`, name).Scan(&exists)
	return exists, err
}

func (r *tenantRepoPG) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenant WHERE subdomain = $1)`, subdomain).Scan(&exists)
	return exists, err
}

func (r *tenantRepoPG) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tenant`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tenantColumns+` FROM tenant ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tenants, err := r.collect(rows)
	return tenants, total, err
}

func (r *tenantRepoPG) ListActive(ctx context.Context) ([]*Tenant, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tenantColumns+` FROM tenant WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *tenantRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE tenant SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func (r *tenantRepoPG) SetPaymentCustomerIfUnset(ctx context.Context, id uuid.UUID, customerID string) (string, error) {
	var linked string
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE tenant
		SET payment_customer_id = COALESCE(payment_customer_id, $2), updated_at = NOW()
		WHERE id = $1
		RETURNING payment_customer_id`, id, customerID).Scan(&linked)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", tenancy.ErrNotFound
	}
	return linked, err
}

func (r *tenantRepoPG) UpdateLocked(ctx context.Context, id uuid.UUID, fn func(t *Tenant) error) (*Tenant, error) {
	var out *Tenant
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := r.scanTenant(r.conn(ctx).QueryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenant WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		err = r.conn(ctx).QueryRow(ctx, `
			UPDATE tenant SET
				plan = $2, payment_subscription_id = $3, payment_customer_id = $4,
				trial_ended_at = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`,
			t.ID, t.Plan, t.PaymentSubscriptionID, t.PaymentCustomerID, t.TrialEndedAt,
		).Scan(&t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("write tenant billing state: %w", err)
		}
		out = t
		return nil
	})
	return out, err
}

func (r *tenantRepoPG) CountByPlan(ctx context.Context) (map[plan.Plan]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT plan, COUNT(*) FROM tenant GROUP BY plan`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[plan.Plan]int)
	for rows.Next() {
		var p plan.Plan
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[p] = n
	}
	return counts, rows.Err()
}

func (r *tenantRepoPG) collect(rows pgx.Rows) ([]*Tenant, error) {
	var tenants []*Tenant
	for rows.Next() {
		t, err := r.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *tenantRepoPG) scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Subdomain, &t.Plan, &t.Specialization,
		&t.TrialStartedAt, &t.TrialEndedAt, &t.PaymentCustomerID, &t.PaymentSubscriptionID,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenancy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
