package clinical

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return tenancy.ErrNotFound
	}
	return err
}

// -- Clinical records --

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const recordColumns = `id, tenant_id, patient_id, author_id, visit_date, diagnosis,
	notes, treatment, created_at, updated_at`

func (r *recordRepoPG) Create(ctx context.Context, rec *ClinicalRecord) error {
	rec.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_record (id, tenant_id, patient_id, author_id, visit_date, diagnosis, notes, treatment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		rec.ID, rec.TenantID, rec.PatientID, rec.AuthorID, rec.VisitDate, rec.Diagnosis, rec.Notes, rec.Treatment,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordColumns+` FROM clinical_record WHERE id = $1`, id))
}

func (r *recordRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*ClinicalRecord, int, error) {
	sq := db.NewScopedQuery("clinical_record", recordColumns, "tenant_id", f)
	if q.PatientID != nil {
		sq.Eq("patient_id", *q.PatientID)
	}
	sq.Contains(q.Search, "diagnosis", "notes", "treatment")
	sq.OrderBy("visit_date DESC, id")
	return db.ListScoped(ctx, r.conn(ctx), sq, limit, offset, scanRecord)
}

func (r *recordRepoPG) Update(ctx context.Context, rec *ClinicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinical_record SET visit_date = $3, diagnosis = $4, notes = $5, treatment = $6, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`,
		rec.ID, rec.TenantID, rec.VisitDate, rec.Diagnosis, rec.Notes, rec.Treatment,
	).Scan(&rec.UpdatedAt)
	return notFound(err)
}

func (r *recordRepoPG) Delete(ctx context.Context, id, tenantID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM clinical_record WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tenancy.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*ClinicalRecord, error) {
	var rec ClinicalRecord
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.PatientID, &rec.AuthorID, &rec.VisitDate,
		&rec.Diagnosis, &rec.Notes, &rec.Treatment, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// -- Lab results --

type labRepoPG struct {
	pool *pgxpool.Pool
}

func NewLabRepo(pool *pgxpool.Pool) LabRepository {
	return &labRepoPG{pool: pool}
}

func (r *labRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const labColumns = `id, tenant_id, patient_id, test_name, result_value, unit, reference_range,
	status, collected_at, reported_at, created_at, updated_at`

func (r *labRepoPG) Create(ctx context.Context, l *LabResult) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_result (id, tenant_id, patient_id, test_name, result_value, unit,
			reference_range, status, collected_at, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		l.ID, l.TenantID, l.PatientID, l.TestName, l.ResultValue, l.Unit,
		l.ReferenceRange, l.Status, l.CollectedAt, l.ReportedAt,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *labRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return scanLab(r.conn(ctx).QueryRow(ctx, `SELECT `+labColumns+` FROM lab_result WHERE id = $1`, id))
}

func (r *labRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*LabResult, int, error) {
	sq := db.NewScopedQuery("lab_result", labColumns, "tenant_id", f)
	if q.PatientID != nil {
		sq.Eq("patient_id", *q.PatientID)
	}
	if q.Status != "" {
		sq.Eq("status", q.Status)
	}
	sq.Contains(q.Search, "test_name")
	sq.OrderBy("created_at DESC, id")
	return db.ListScoped(ctx, r.conn(ctx), sq, limit, offset, scanLab)
}

func (r *labRepoPG) Update(ctx context.Context, l *LabResult) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_result SET test_name = $3, result_value = $4, unit = $5, reference_range = $6,
			status = $7, collected_at = $8, reported_at = $9, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`,
		l.ID, l.TenantID, l.TestName, l.ResultValue, l.Unit, l.ReferenceRange,
		l.Status, l.CollectedAt, l.ReportedAt,
	).Scan(&l.UpdatedAt)
	return notFound(err)
}

func scanLab(row pgx.Row) (*LabResult, error) {
	var l LabResult
	err := row.Scan(&l.ID, &l.TenantID, &l.PatientID, &l.TestName, &l.ResultValue, &l.Unit,
		&l.ReferenceRange, &l.Status, &l.CollectedAt, &l.ReportedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// -- Referrals --

type referralRepoPG struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) ReferralRepository {
	return &referralRepoPG{pool: pool}
}

func (r *referralRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const referralColumns = `id, tenant_id, patient_id, referred_by, referred_to, specialty,
	reason, urgency, status, created_at, updated_at`

func (r *referralRepoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referral (id, tenant_id, patient_id, referred_by, referred_to, specialty, reason, urgency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		ref.ID, ref.TenantID, ref.PatientID, ref.ReferredBy, ref.ReferredTo, ref.Specialty,
		ref.Reason, ref.Urgency, ref.Status,
	).Scan(&ref.CreatedAt, &ref.UpdatedAt)
}

func (r *referralRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx, `SELECT `+referralColumns+` FROM referral WHERE id = $1`, id))
}

func (r *referralRepoPG) List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Referral, int, error) {
	sq := db.NewScopedQuery("referral", referralColumns, "tenant_id", f)
	if q.PatientID != nil {
		sq.Eq("patient_id", *q.PatientID)
	}
	if q.Status != "" {
		sq.Eq("status", q.Status)
	}
	sq.Contains(q.Search, "referred_to", "specialty", "reason")
	sq.OrderBy("created_at DESC, id")
	return db.ListScoped(ctx, r.conn(ctx), sq, limit, offset, scanReferral)
}

func (r *referralRepoPG) Update(ctx context.Context, ref *Referral) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE referral SET referred_to = $3, specialty = $4, reason = $5, urgency = $6,
			status = $7, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at`,
		ref.ID, ref.TenantID, ref.ReferredTo, ref.Specialty, ref.Reason, ref.Urgency, ref.Status,
	).Scan(&ref.UpdatedAt)
	return notFound(err)
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.TenantID, &ref.PatientID, &ref.ReferredBy, &ref.ReferredTo,
		&ref.Specialty, &ref.Reason, &ref.Urgency, &ref.Status, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &ref, nil
}
