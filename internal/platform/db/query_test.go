package db

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

func TestScopedQuery_TenantPredicateComesFirst(t *testing.T) {
	tid := uuid.New()
	q := NewScopedQuery("patient", "id, name", "tenant_id", tenancy.ScopeFilter(tenancy.Actor{TenantID: tid}))
	q.Contains("smi", "first_name", "last_name")
	q.Eq("gender", "female")
	q.OrderBy("last_name ASC")

	wantCount := "SELECT COUNT(*) FROM patient WHERE tenant_id = $1 AND (first_name ILIKE $2 OR last_name ILIKE $2) AND gender = $3"
	if got := q.CountSQL(); got != wantCount {
		t.Errorf("CountSQL = %q\nwant      %q", got, wantCount)
	}
	wantData := "SELECT id, name FROM patient WHERE tenant_id = $1 AND (first_name ILIKE $2 OR last_name ILIKE $2) AND gender = $3 ORDER BY last_name ASC LIMIT $4 OFFSET $5"
	if got := q.DataSQL(20, 40); got != wantData {
		t.Errorf("DataSQL = %q\nwant     %q", got, wantData)
	}
	args := q.DataArgs(20, 40)
	if len(args) != 5 || args[0] != tid || args[1] != "%smi%" || args[3] != 20 || args[4] != 40 {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestScopedQuery_PlatformAndUnbound(t *testing.T) {
	q := NewScopedQuery("audit_entry", "id", "tenant_id", tenancy.ScopeFilter(tenancy.Actor{PlatformAdmin: true}))
	q.Since("created_at", time.Unix(0, 0))
	if got := q.CountSQL(); got != "SELECT COUNT(*) FROM audit_entry WHERE TRUE AND created_at >= $1" {
		t.Errorf("platform CountSQL = %q", got)
	}

	q = NewScopedQuery("audit_entry", "id", "tenant_id", tenancy.ScopeFilter(tenancy.Actor{UserID: uuid.New()}))
	if got := q.AllSQL(); got != "SELECT id FROM audit_entry WHERE FALSE" {
		t.Errorf("unbound AllSQL = %q", got)
	}
}

func TestScopedQuery_ContainsEmptyIsNoop(t *testing.T) {
	q := NewScopedQuery("t", "id", "tenant_id", tenancy.ScopeFilter(tenancy.Actor{PlatformAdmin: true}))
	q.Contains("", "name")
	if q.Idx() != 1 {
		t.Errorf("Idx = %d, want 1", q.Idx())
	}
}
