package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// In-tenant roles.
const (
	RoleAdmin        = "admin"
	RoleClinician    = "clinician"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
	RoleUser         = "user"
)

// JoinRoles are the roles a user may ask for when joining an existing tenant.
var JoinRoles = map[string]bool{
	RoleClinician:    true,
	RoleNurse:        true,
	RoleReceptionist: true,
	RoleUser:         true,
}

// User maps to the app_user table. TenantID is uuid.Nil only for platform
// operators.
type User struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"is_active"`
	PlatformAdmin bool       `json:"platform_admin"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (u *User) OwnerTenant() uuid.UUID      { return u.TenantID }
func (u *User) SetOwnerTenant(id uuid.UUID) { u.TenantID = id }

// Actor is the identity the user acts as once authenticated.
func (u *User) Actor() tenancy.Actor {
	return tenancy.Actor{
		UserID:        u.ID,
		TenantID:      u.TenantID,
		Role:          u.Role,
		PlatformAdmin: u.PlatformAdmin,
	}
}

// Query narrows a scoped user listing.
type Query struct {
	Active *bool
	Role   string
	Search string
}
