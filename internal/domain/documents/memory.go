package documents

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/memstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo keeps document metadata in process.
type MemoryRepo struct {
	t *memstore.Table[Document]
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{t: memstore.New(
		func(d *Document) uuid.UUID { return d.ID },
		func(d *Document) uuid.UUID { return d.TenantID },
	)}
}

func (m *MemoryRepo) Create(_ context.Context, d *Document) error {
	d.CreatedAt = time.Now().UTC()
	m.t.Put(d)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	return m.t.Get(id)
}

func (m *MemoryRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Document, int, error) {
	needle := strings.ToLower(q.Search)
	items, total := m.t.Select(f,
		func(d *Document) bool {
			if q.PatientID != nil && (d.PatientID == nil || *d.PatientID != *q.PatientID) {
				return false
			}
			if q.Category != "" && d.Category != q.Category {
				return false
			}
			return needle == "" || strings.Contains(strings.ToLower(d.Title+" "+d.FileName), needle)
		},
		func(a, b *Document) bool { return a.CreatedAt.After(b.CreatedAt) },
		limit, offset)
	return items, total, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id, tenantID uuid.UUID) error {
	return m.t.Delete(id, tenantID)
}
