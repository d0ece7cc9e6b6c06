package account

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo is an in-process Repository for tests and local tooling.
type MemoryRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[uuid.UUID]*User)}
}

func (m *MemoryRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return apperr.Invalid("username", "A user with that username already exists.")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, tenancy.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *MemoryRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			c := *u
			return &c, nil
		}
	}
	return nil, tenancy.ErrNotFound
}

func (m *MemoryRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := m.GetByUsername(ctx, username)
	return err == nil, nil
}

func (m *MemoryRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	search := strings.ToLower(q.Search)
	for _, u := range m.users {
		if !f.Allows(u.TenantID) {
			continue
		}
		if q.Active != nil && u.IsActive != *q.Active {
			continue
		}
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Username+" "+u.Email+" "+u.FirstName+" "+u.LastName), search) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *MemoryRepo) CountInTenant(_ context.Context, tenantID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepo) ListActiveAdmins(_ context.Context, tenantID uuid.UUID) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if u.TenantID == tenantID && u.IsActive && u.Role == RoleAdmin {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemoryRepo) Activate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.IsActive {
		return tenancy.ErrNotFound
	}
	u.IsActive = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) DeletePending(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.IsActive {
		return tenancy.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MemoryRepo) TouchLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		t := at
		u.LastLoginAt = &t
	}
	return nil
}
