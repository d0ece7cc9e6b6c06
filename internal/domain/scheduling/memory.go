package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/memstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo keeps appointments in process.
type MemoryRepo struct {
	t *memstore.Table[Appointment]
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{t: memstore.New(
		func(a *Appointment) uuid.UUID { return a.ID },
		func(a *Appointment) uuid.UUID { return a.TenantID },
	)}
}

func (m *MemoryRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.t.Put(a)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	return m.t.Get(id)
}

func (m *MemoryRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Appointment, int, error) {
	items, total := m.t.Select(f, q.matches,
		func(a, b *Appointment) bool { return a.ScheduledAt.Before(b.ScheduledAt) },
		limit, offset)
	return items, total, nil
}

func (m *MemoryRepo) Update(_ context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	return m.t.Replace(a, a.TenantID)
}

func (m *MemoryRepo) Overlaps(_ context.Context, tenantID, clinicianID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	hits := m.t.All(tenancy.ScopeFilter(tenancy.Actor{TenantID: tenantID}), func(a *Appointment) bool {
		return a.ID != exclude && a.Active() &&
			a.ClinicianID != nil && *a.ClinicianID == clinicianID &&
			a.ScheduledAt.Before(end) && a.EndsAt().After(start)
	})
	return len(hits) > 0, nil
}

// Count returns the number of appointments in tenantID.
func (m *MemoryRepo) Count(tenantID uuid.UUID) int {
	return m.t.Count(tenantID)
}

func (q Query) matches(a *Appointment) bool {
	if q.PatientID != nil && a.PatientID != *q.PatientID {
		return false
	}
	if q.ClinicianID != nil && (a.ClinicianID == nil || *a.ClinicianID != *q.ClinicianID) {
		return false
	}
	if q.Status != "" && a.Status != q.Status {
		return false
	}
	if q.From != nil && a.ScheduledAt.Before(*q.From) {
		return false
	}
	if q.To != nil && !a.ScheduledAt.Before(*q.To) {
		return false
	}
	return true
}
