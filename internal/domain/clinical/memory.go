package clinical

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/memstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

func contains(needle string, fields ...string) bool {
	if needle == "" {
		return true
	}
	needle = strings.ToLower(needle)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func (q Query) patient(id uuid.UUID) bool {
	return q.PatientID == nil || *q.PatientID == id
}

func (q Query) status(s string) bool {
	return q.Status == "" || q.Status == s
}

// MemoryRecordRepo keeps clinical records in process.
type MemoryRecordRepo struct {
	t *memstore.Table[ClinicalRecord]
}

func NewMemoryRecordRepo() *MemoryRecordRepo {
	return &MemoryRecordRepo{t: memstore.New(
		func(r *ClinicalRecord) uuid.UUID { return r.ID },
		func(r *ClinicalRecord) uuid.UUID { return r.TenantID },
	)}
}

func (m *MemoryRecordRepo) Create(_ context.Context, r *ClinicalRecord) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.t.Put(r)
	return nil
}

func (m *MemoryRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	return m.t.Get(id)
}

func (m *MemoryRecordRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*ClinicalRecord, int, error) {
	items, total := m.t.Select(f,
		func(r *ClinicalRecord) bool {
			return q.patient(r.PatientID) && contains(q.Search, r.Diagnosis, r.Notes, r.Treatment)
		},
		func(a, b *ClinicalRecord) bool { return a.VisitDate.After(b.VisitDate) },
		limit, offset)
	return items, total, nil
}

func (m *MemoryRecordRepo) Update(_ context.Context, r *ClinicalRecord) error {
	r.UpdatedAt = time.Now().UTC()
	return m.t.Replace(r, r.TenantID)
}

func (m *MemoryRecordRepo) Delete(_ context.Context, id, tenantID uuid.UUID) error {
	return m.t.Delete(id, tenantID)
}

// MemoryLabRepo keeps lab results in process.
type MemoryLabRepo struct {
	t *memstore.Table[LabResult]
}

func NewMemoryLabRepo() *MemoryLabRepo {
	return &MemoryLabRepo{t: memstore.New(
		func(l *LabResult) uuid.UUID { return l.ID },
		func(l *LabResult) uuid.UUID { return l.TenantID },
	)}
}

func (m *MemoryLabRepo) Create(_ context.Context, l *LabResult) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now().UTC()
	l.UpdatedAt = l.CreatedAt
	m.t.Put(l)
	return nil
}

func (m *MemoryLabRepo) GetByID(_ context.Context, id uuid.UUID) (*LabResult, error) {
	return m.t.Get(id)
}

func (m *MemoryLabRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*LabResult, int, error) {
	items, total := m.t.Select(f,
		func(l *LabResult) bool {
			return q.patient(l.PatientID) && q.status(l.Status) && contains(q.Search, l.TestName)
		},
		func(a, b *LabResult) bool { return a.CreatedAt.After(b.CreatedAt) },
		limit, offset)
	return items, total, nil
}

func (m *MemoryLabRepo) Update(_ context.Context, l *LabResult) error {
	l.UpdatedAt = time.Now().UTC()
	return m.t.Replace(l, l.TenantID)
}

// MemoryReferralRepo keeps referrals in process.
type MemoryReferralRepo struct {
	t *memstore.Table[Referral]
}

func NewMemoryReferralRepo() *MemoryReferralRepo {
	return &MemoryReferralRepo{t: memstore.New(
		func(r *Referral) uuid.UUID { return r.ID },
		func(r *Referral) uuid.UUID { return r.TenantID },
	)}
}

func (m *MemoryReferralRepo) Create(_ context.Context, r *Referral) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.t.Put(r)
	return nil
}

func (m *MemoryReferralRepo) GetByID(_ context.Context, id uuid.UUID) (*Referral, error) {
	return m.t.Get(id)
}

func (m *MemoryReferralRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Referral, int, error) {
	items, total := m.t.Select(f,
		func(r *Referral) bool {
			return q.patient(r.PatientID) && q.status(r.Status) && contains(q.Search, r.ReferredTo, r.Specialty, r.Reason)
		},
		func(a, b *Referral) bool { return a.CreatedAt.After(b.CreatedAt) },
		limit, offset)
	return items, total, nil
}

func (m *MemoryReferralRepo) Update(_ context.Context, r *Referral) error {
	r.UpdatedAt = time.Now().UTC()
	return m.t.Replace(r, r.TenantID)
}
