package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientColumns = `id, tenant_id, first_name, last_name, date_of_birth, gender,
	email, phone, address, created_by, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (
			id, tenant_id, first_name, last_name, date_of_birth, gender,
			email, phone, address, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.TenantID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Email, p.Phone, p.Address, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Patient, int, error) {
	sq := db.NewScopedQuery("patient", patientColumns, "tenant_id", f)
	sq.Contains(q.Search, "first_name", "last_name", "email", "phone")
	if q.Gender != "" {
		sq.Eq("gender", q.Gender)
	}
	sq.OrderBy("last_name, first_name, id")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, sq.CountSQL(), sq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, sq.DataSQL(limit, offset), sq.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET first_name = $3, last_name = $4, date_of_birth = $5,
			gender = $6, email = $7, phone = $8, address = $9, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`,
		p.ID, p.TenantID, p.FirstName, p.LastName, p.DateOfBirth,
		p.Gender, p.Email, p.Phone, p.Address,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tenancy.ErrNotFound
	}
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id, tenantID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if db.IsForeignKeyViolation(err) {
		return apperr.Invalid("patient", "Patient has linked records and cannot be deleted.")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Email, &p.Phone, &p.Address, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenancy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
