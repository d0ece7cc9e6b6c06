package tenant

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo is an in-process Repository for tests and local tooling. Each
// tenant gets its own mutex so UpdateLocked serializes like a row lock.
type MemoryRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*Tenant
	locks   map[uuid.UUID]*sync.Mutex
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tenants: make(map[uuid.UUID]*Tenant),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func clone(t *Tenant) *Tenant {
	c := *t
	return &c
}

func (m *MemoryRepo) Create(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	m.tenants[t.ID] = clone(t)
	m.locks[t.ID] = &sync.Mutex{}
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, tenancy.ErrNotFound
	}
	return clone(t), nil
}

func (m *MemoryRepo) GetByName(_ context.Context, name string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if strings.EqualFold(t.Name, name) {
			return clone(t), nil
		}
	}
	return nil, tenancy.ErrNotFound
}

// GetForUpdate does not lock; callers in tests serialize themselves.
func (m *MemoryRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryRepo) NameTaken(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if strings.EqualFold(t.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepo) SubdomainExists(_ context.Context, subdomain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.Subdomain == subdomain {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepo) sorted(filter func(*Tenant) bool) []*Tenant {
	var out []*Tenant
	for _, t := range m.tenants {
		if filter(t) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int) ([]*Tenant, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(*Tenant) bool { return true })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryRepo) ListActive(_ context.Context) ([]*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(t *Tenant) bool { return t.IsActive }), nil
}

func (m *MemoryRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return tenancy.ErrNotFound
	}
	t.IsActive = active
	return nil
}

// SetPaymentCustomerIfUnset takes the tenant's lock so it cannot interleave
// with UpdateLocked.
func (m *MemoryRepo) SetPaymentCustomerIfUnset(_ context.Context, id uuid.UUID, customerID string) (string, error) {
	m.mu.Lock()
	lock, ok := m.locks[id]
	m.mu.Unlock()
	if !ok {
		return "", tenancy.ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenants[id]
	if t.PaymentCustomerID == nil {
		c := customerID
		t.PaymentCustomerID = &c
	}
	return *t.PaymentCustomerID, nil
}

func (m *MemoryRepo) UpdateLocked(_ context.Context, id uuid.UUID, fn func(t *Tenant) error) (*Tenant, error) {
	m.mu.Lock()
	lock, ok := m.locks[id]
	m.mu.Unlock()
	if !ok {
		return nil, tenancy.ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	working := clone(m.tenants[id])
	m.mu.Unlock()

	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	stored := m.tenants[id]
	stored.Plan = working.Plan
	stored.PaymentSubscriptionID = working.PaymentSubscriptionID
	stored.PaymentCustomerID = working.PaymentCustomerID
	stored.TrialEndedAt = working.TrialEndedAt
	stored.UpdatedAt = working.UpdatedAt
	out := clone(stored)
	m.mu.Unlock()
	return out, nil
}

func (m *MemoryRepo) CountByPlan(_ context.Context) (map[plan.Plan]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[plan.Plan]int)
	for _, t := range m.tenants {
		counts[t.Plan]++
	}
	return counts, nil
}

// Put stores t as-is, bypassing Create's defaults.
func (m *MemoryRepo) Put(t *Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = clone(t)
	if _, ok := m.locks[t.ID]; !ok {
		m.locks[t.ID] = &sync.Mutex{}
	}
}
