package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the services. API calls recorded by the HTTP
// middleware use "api.<verb>".
const (
	ActionTenantCreated  = "tenant.created"
	ActionUserRegistered = "user.registered"
	ActionUserJoined     = "user.join_requested"
	ActionUserApproved   = "user.approved"
	ActionUserRejected   = "user.rejected"
	ActionPlanChanged    = "billing.plan_changed"
	ActionLogin          = "user.login"
)

// Entry is one tenant-owned audit record.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Action     string     `json:"action"`
	Resource   string     `json:"resource,omitempty"`
	ResourceID string     `json:"resource_id,omitempty"`
	Details    string     `json:"details,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (e *Entry) OwnerTenant() uuid.UUID      { return e.TenantID }
func (e *Entry) SetOwnerTenant(id uuid.UUID) { e.TenantID = id }

// Query narrows a scoped listing.
type Query struct {
	Action   string
	Resource string
	UserID   *uuid.UUID
	Since    *time.Time
}
