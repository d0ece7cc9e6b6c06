package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const appointmentColumns = `id, tenant_id, patient_id, clinician_id, scheduled_at, duration_min,
	reason, status, created_at, updated_at`

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, tenant_id, patient_id, clinician_id, scheduled_at, duration_min, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.TenantID, a.PatientID, a.ClinicianID, a.ScheduledAt, a.DurationMin, a.Reason, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Appointment, int, error) {
	sq := db.NewScopedQuery("appointment", appointmentColumns, "tenant_id", f)
	if q.PatientID != nil {
		sq.Eq("patient_id", *q.PatientID)
	}
	if q.ClinicianID != nil {
		sq.Eq("clinician_id", *q.ClinicianID)
	}
	if q.Status != "" {
		sq.Eq("status", q.Status)
	}
	if q.From != nil {
		sq.Since("scheduled_at", *q.From)
	}
	if q.To != nil {
		sq.Before("scheduled_at", *q.To)
	}
	sq.OrderBy("scheduled_at, id")
	return db.ListScoped(ctx, r.conn(ctx), sq, limit, offset, scanAppointment)
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET clinician_id = $3, scheduled_at = $4, duration_min = $5,
			reason = $6, status = $7, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`,
		a.ID, a.TenantID, a.ClinicianID, a.ScheduledAt, a.DurationMin, a.Reason, a.Status,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return tenancy.ErrNotFound
	}
	return err
}

func (r *appointmentRepoPG) Overlaps(ctx context.Context, tenantID, clinicianID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE tenant_id = $1 AND clinician_id = $2 AND id <> $3
			  AND status NOT IN ('%s', '%s')
			  AND scheduled_at < $5
			  AND scheduled_at + make_interval(mins => duration_min) > $4
		)`, StatusCancelled, StatusNoShow),
		tenantID, clinicianID, exclude, start, end,
	).Scan(&exists)
	return exists, err
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.ClinicianID, &a.ScheduledAt, &a.DurationMin,
		&a.Reason, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenancy.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
