package patient

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo keeps patients in process. Other packages use it in tests.
type MemoryRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *MemoryRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	c := *p
	m.patients[p.ID] = &c
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, tenancy.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *MemoryRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(q.Search)
	var matched []*Patient
	for _, p := range m.patients {
		if !f.Allows(p.TenantID) {
			continue
		}
		if q.Gender != "" && p.Gender != q.Gender {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.FirstName+" "+p.LastName+" "+p.Email+" "+p.Phone), needle) {
			continue
		}
		c := *p
		matched = append(matched, &c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].LastName != matched[j].LastName {
			return matched[i].LastName < matched[j].LastName
		}
		return matched[i].FirstName < matched[j].FirstName
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *MemoryRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.patients[p.ID]
	if !ok || cur.TenantID != p.TenantID {
		return tenancy.ErrNotFound
	}
	c := *p
	c.TenantID = cur.TenantID
	c.UpdatedAt = time.Now().UTC()
	p.UpdatedAt = c.UpdatedAt
	m.patients[p.ID] = &c
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id, tenantID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.patients[id]
	if !ok || cur.TenantID != tenantID {
		return tenancy.ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

// Count returns the number of patients in tenantID.
func (m *MemoryRepo) Count(tenantID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.patients {
		if p.TenantID == tenantID {
			n++
		}
	}
	return n
}
