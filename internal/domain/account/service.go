package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/audit"
	"github.com/cliniccloud/cliniccloud/internal/domain/billing"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/auth"
	"github.com/cliniccloud/cliniccloud/internal/platform/notification"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

var (
	// ErrInvalidCredentials covers unknown users, wrong passwords and a
	// tenant selector that does not match the user.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrPendingApproval is returned at login for a joined user no admin has
	// approved yet.
	ErrPendingApproval = errors.New("account pending approval")
	// ErrTenantInactive blocks login into a deactivated tenant.
	ErrTenantInactive = errors.New("tenant is inactive")
)

// Service covers user lookups and the admin approval workflow. Approve is the
// only path that activates a user who joined an existing tenant.
type Service struct {
	users   Repository
	tenants tenant.Repository
	notify  *notification.Manager
	audit   *audit.Recorder
	siteURL string
	logger  zerolog.Logger
}

func NewService(users Repository, tenants tenant.Repository, notify *notification.Manager, rec *audit.Recorder, siteURL string, logger zerolog.Logger) *Service {
	return &Service{
		users:   users,
		tenants: tenants,
		notify:  notify,
		audit:   rec,
		siteURL: siteURL,
		logger:  logger.With().Str("component", "account").Logger(),
	}
}

// Me returns the actor's own user record.
func (s *Service) Me(ctx context.Context, actor tenancy.Actor) (*User, error) {
	u, err := s.users.GetByID(ctx, actor.UserID)
	return tenancy.Resolve(u, err, actor)
}

// Get returns a user of the actor's tenant. Platform accounts, which have no
// tenant, are visible to platform operators only.
func (s *Service) Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	u, err = tenancy.Resolve(u, err, actor)
	if err != nil {
		return nil, err
	}
	if u.TenantID == uuid.Nil && !actor.PlatformAdmin {
		return nil, tenancy.ErrAccessDenied
	}
	return u, nil
}

// List returns the users of the actor's tenant, or of every tenant for a
// platform operator.
func (s *Service) List(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

// ListPending returns users awaiting approval. Tenant admins and platform
// operators only.
func (s *Service) ListPending(ctx context.Context, actor tenancy.Actor, limit, offset int) ([]*User, int, error) {
	if !canApprove(actor) {
		return nil, 0, tenancy.ErrAccessDenied
	}
	pending := false
	return s.users.List(ctx, tenancy.ScopeFilter(actor), Query{Active: &pending}, limit, offset)
}

func canApprove(a tenancy.Actor) bool {
	return a.PlatformAdmin || (a.HasTenant() && a.IsAdmin())
}

// pendingUser loads id for an approval decision by actor. Users in other
// tenants and users that are already active are both denied.
func (s *Service) pendingUser(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*User, error) {
	if !canApprove(actor) {
		return nil, tenancy.ErrAccessDenied
	}
	u, err := s.users.GetByID(ctx, id)
	u, err = tenancy.Resolve(u, err, actor)
	if err != nil {
		return nil, err
	}
	if u.IsActive {
		return nil, apperr.Invalid("user", "User is already active.")
	}
	return u, nil
}

// Approve activates a pending user in the actor's tenant.
func (s *Service) Approve(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*User, error) {
	u, err := s.pendingUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.Activate(ctx, u.ID); err != nil {
		if errors.Is(err, tenancy.ErrNotFound) {
			return nil, apperr.Invalid("user", "User is already active.")
		}
		return nil, fmt.Errorf("activate user: %w", err)
	}
	u.IsActive = true

	s.audit.Record(ctx, actor, audit.Entry{
		TenantID:   u.TenantID,
		Action:     audit.ActionUserApproved,
		Resource:   "user",
		ResourceID: u.ID.String(),
		Details:    fmt.Sprintf("User %s approved.", u.Username),
	})
	s.logger.Info().
		Str("tenant_id", u.TenantID.String()).
		Str("user_id", u.ID.String()).
		Str("approved_by", actor.UserID.String()).
		Msg("user approved")

	s.send(ctx, u, notification.TplUserApproved, map[string]string{
		"login_url": s.siteURL + "/login",
		"role":      u.Role,
	})
	return u, nil
}

// Reject deletes a pending user and tells them why.
func (s *Service) Reject(ctx context.Context, actor tenancy.Actor, id uuid.UUID, reason string) error {
	u, err := s.pendingUser(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.users.DeletePending(ctx, u.ID); err != nil {
		if errors.Is(err, tenancy.ErrNotFound) {
			return apperr.Invalid("user", "User is already active.")
		}
		return fmt.Errorf("delete pending user: %w", err)
	}

	reason = strings.TrimSpace(reason)
	s.audit.Record(ctx, actor, audit.Entry{
		TenantID:   u.TenantID,
		Action:     audit.ActionUserRejected,
		Resource:   "user",
		ResourceID: u.ID.String(),
		Details:    strings.TrimSpace(fmt.Sprintf("User %s rejected. %s", u.Username, reason)),
	})

	reasonLine := ""
	if reason != "" {
		reasonLine = "Reason: " + reason + "\n"
	}
	s.send(ctx, u, notification.TplUserRejected, map[string]string{"reason_line": reasonLine})
	return nil
}

func (s *Service) send(ctx context.Context, u *User, tpl string, data map[string]string) {
	if s.notify == nil {
		return
	}
	data["username"] = u.Username
	if t, err := s.tenants.GetByID(ctx, u.TenantID); err == nil {
		data["tenant_name"] = t.Name
	}
	if err := s.notify.SendFromTemplate(ctx, tpl, data, u.Email); err != nil {
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Str("template", tpl).Msg("user notice failed")
	}
}

// CreatePlatformAdmin creates an active operator account outside any tenant.
func (s *Service) CreatePlatformAdmin(ctx context.Context, username, email, password string) (*User, error) {
	v := apperr.NewValidation()
	validateUsername(v, strings.TrimSpace(username))
	validateEmail(v, strings.TrimSpace(email))
	validatePassword(v, password, password)
	if !v.Empty() {
		return nil, v
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:      strings.TrimSpace(username),
		Email:         strings.TrimSpace(email),
		PasswordHash:  hash,
		Role:          RoleAdmin,
		IsActive:      true,
		PlatformAdmin: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("platform admin created")
	return u, nil
}

// AdminDirectory lists active tenant admins as reminder recipients.
type AdminDirectory struct {
	users Repository
}

func NewAdminDirectory(users Repository) *AdminDirectory {
	return &AdminDirectory{users: users}
}

func (d *AdminDirectory) ActiveAdmins(ctx context.Context, tenantID uuid.UUID) ([]billing.Recipient, error) {
	admins, err := d.users.ListActiveAdmins(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]billing.Recipient, 0, len(admins))
	for _, a := range admins {
		out = append(out, billing.Recipient{Username: a.Username, Email: a.Email})
	}
	return out, nil
}

// Authenticator exchanges credentials for an access token.
type Authenticator struct {
	users   Repository
	tenants tenant.Repository
	issuer  *auth.Issuer
	audit   *audit.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

func NewAuthenticator(users Repository, tenants tenant.Repository, issuer *auth.Issuer, rec *audit.Recorder, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		users:   users,
		tenants: tenants,
		issuer:  issuer,
		audit:   rec,
		logger:  logger.With().Str("component", "account.auth").Logger(),
		now:     time.Now,
	}
}

// LoginRequest names the user and, optionally, the tenant they belong to by
// name or subdomain.
type LoginRequest struct {
	Tenant   string `json:"tenant"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := a.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, tenancy.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if u.TenantID != uuid.Nil {
		t, err := a.tenants.GetByID(ctx, u.TenantID)
		if err != nil {
			return nil, fmt.Errorf("load user tenant: %w", err)
		}
		if sel := strings.TrimSpace(req.Tenant); sel != "" &&
			!strings.EqualFold(sel, t.Name) && !strings.EqualFold(sel, t.Subdomain) {
			return nil, ErrInvalidCredentials
		}
		if !t.IsActive {
			return nil, ErrTenantInactive
		}
	}
	if !u.IsActive {
		return nil, ErrPendingApproval
	}

	token, exp, err := a.issuer.Issue(u.Actor())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	now := a.now().UTC()
	if err := a.users.TouchLogin(ctx, u.ID, now); err != nil {
		a.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("record last login")
	}
	u.LastLoginAt = &now
	a.audit.Record(ctx, u.Actor(), audit.Entry{Action: audit.ActionLogin, Resource: "user", ResourceID: u.ID.String()})
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}
