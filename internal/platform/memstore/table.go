// Package memstore is a tenant-aware in-process table used by the memory
// repositories. Rows are stored by value so callers never share pointers
// with the table.
package memstore

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Table holds rows of T keyed by id.
type Table[T any] struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]T
	id     func(*T) uuid.UUID
	tenant func(*T) uuid.UUID
}

func New[T any](id, tenant func(*T) uuid.UUID) *Table[T] {
	return &Table[T]{rows: make(map[uuid.UUID]T), id: id, tenant: tenant}
}

// Put inserts or replaces v.
func (t *Table[T]) Put(v *T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[t.id(v)] = *v
}

func (t *Table[T]) Get(id uuid.UUID) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.rows[id]
	if !ok {
		return nil, tenancy.ErrNotFound
	}
	return &v, nil
}

// Replace overwrites the row matching v's id and tenantID. The stored
// tenant never changes.
func (t *Table[T]) Replace(v *T, tenantID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.rows[t.id(v)]
	if !ok || t.tenant(&cur) != tenantID || t.tenant(v) != tenantID {
		return tenancy.ErrNotFound
	}
	t.rows[t.id(v)] = *v
	return nil
}

// Delete removes id if it belongs to tenantID.
func (t *Table[T]) Delete(id, tenantID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.rows[id]
	if !ok || t.tenant(&cur) != tenantID {
		return tenancy.ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

// Select returns one page of the rows f allows and match accepts, sorted by
// less, together with the total match count.
func (t *Table[T]) Select(f tenancy.Filter, match func(*T) bool, less func(a, b *T) bool, limit, offset int) ([]*T, int) {
	all := t.All(f, match)
	if less != nil {
		sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })
	}
	total := len(all)
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total
}

// All returns every row f allows and match accepts, unordered.
func (t *Table[T]) All(f tenancy.Filter, match func(*T) bool) []*T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*T
	for _, v := range t.rows {
		v := v
		if !f.Allows(t.tenant(&v)) {
			continue
		}
		if match != nil && !match(&v) {
			continue
		}
		out = append(out, &v)
	}
	return out
}

// Count returns the number of rows owned by tenantID.
func (t *Table[T]) Count(tenantID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, v := range t.rows {
		if t.tenant(&v) == tenantID {
			n++
		}
	}
	return n
}
