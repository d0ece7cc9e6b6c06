package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/memstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo keeps events in process.
type MemoryRepo struct {
	t   *memstore.Table[Event]
	now func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		t: memstore.New(
			func(e *Event) uuid.UUID { return e.ID },
			func(e *Event) uuid.UUID { return e.TenantID },
		),
		now: time.Now,
	}
}

func (m *MemoryRepo) Create(_ context.Context, e *Event) error {
	e.ID = uuid.New()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now().UTC()
	}
	m.t.Put(e)
	return nil
}

func (m *MemoryRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Event, int, error) {
	items, total := m.t.Select(f, q.matches,
		func(a, b *Event) bool { return a.CreatedAt.After(b.CreatedAt) },
		limit, offset)
	return items, total, nil
}

func (m *MemoryRepo) CountByType(_ context.Context, tenantID uuid.UUID, since time.Time) (map[string]int, error) {
	out := map[string]int{}
	f := tenancy.ScopeFilter(tenancy.Actor{TenantID: tenantID})
	for _, e := range m.t.All(f, Query{Since: &since}.matches) {
		out[e.Type]++
	}
	return out, nil
}
