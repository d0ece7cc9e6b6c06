package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cliniccloud/cliniccloud/internal/platform/memstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo keeps invoices in process.
type MemoryRepo struct {
	t *memstore.Table[Invoice]
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{t: memstore.New(
		func(i *Invoice) uuid.UUID { return i.ID },
		func(i *Invoice) uuid.UUID { return i.TenantID },
	)}
}

func withOwnItems(inv *Invoice) *Invoice {
	cp := *inv
	cp.Items = append([]LineItem(nil), inv.Items...)
	return &cp
}

func (m *MemoryRepo) Create(_ context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	m.t.Put(withOwnItems(inv))
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := m.t.Get(id)
	if err != nil {
		return nil, err
	}
	return withOwnItems(inv), nil
}

func (m *MemoryRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Invoice, int, error) {
	items, total := m.t.Select(f, q.matches,
		func(a, b *Invoice) bool { return a.CreatedAt.After(b.CreatedAt) },
		limit, offset)
	for _, inv := range items {
		inv.Items = nil
	}
	return items, total, nil
}

func (m *MemoryRepo) Update(_ context.Context, inv *Invoice, replaceItems bool) error {
	cur, err := m.t.Get(inv.ID)
	if err != nil {
		return err
	}
	next := withOwnItems(inv)
	if !replaceItems {
		next.Items = cur.Items
	}
	next.Number = cur.Number
	next.PatientID = cur.PatientID
	next.UpdatedAt = time.Now().UTC()
	if err := m.t.Replace(next, inv.TenantID); err != nil {
		return err
	}
	inv.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *MemoryRepo) Outstanding(_ context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, inv := range m.t.All(tenancy.ScopeFilter(tenancy.Actor{TenantID: tenantID}), nil) {
		if inv.PatientID == patientID && inv.Outstanding() {
			sum = sum.Add(inv.Total)
		}
	}
	return sum, nil
}

func (m *MemoryRepo) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, inv := range m.t.All(tenancy.ScopeFilter(tenancy.Actor{PlatformAdmin: true}), nil) {
		if inv.Status != StatusSent || !inv.DueAt.Before(now) {
			continue
		}
		inv.Status = StatusOverdue
		inv.UpdatedAt = time.Now().UTC()
		if err := m.t.Replace(inv, inv.TenantID); err == nil {
			n++
		}
	}
	return n, nil
}
