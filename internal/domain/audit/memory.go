package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// MemoryRepo keeps entries in process. Other packages use it in tests.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (m *MemoryRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	c := *e
	m.entries = append(m.entries, &c)
	return nil
}

func (m *MemoryRepo) List(_ context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Entry
	for _, e := range m.entries {
		if !f.Allows(e.TenantID) || !q.matches(e) {
			continue
		}
		c := *e
		matched = append(matched, &c)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
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

// Entries returns a copy of everything recorded, oldest first.
func (m *MemoryRepo) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e
	}
	return out
}

func (q Query) matches(e *Entry) bool {
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.Resource != "" && e.Resource != q.Resource {
		return false
	}
	if q.UserID != nil && (e.UserID == nil || *e.UserID != *q.UserID) {
		return false
	}
	if q.Since != nil && e.CreatedAt.Before(*q.Since) {
		return false
	}
	return true
}
