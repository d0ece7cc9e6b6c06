package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/audit"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/auth"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/notification"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Registration is the outcome of a successful sign-up.
type Registration struct {
	User               *User          `json:"user"`
	Tenant             *tenant.Tenant `json:"tenant"`
	TenantCreated      bool           `json:"tenant_created"`
	PendingApproval    bool           `json:"pending_approval"`
	TrialDaysRemaining int            `json:"trial_days_remaining"`
}

// Provisioner creates a tenant with its first admin, or attaches a pending
// user to an existing tenant. Either mode commits as one transaction.
type Provisioner struct {
	tx      db.TxRunner
	tenants *tenant.Service
	users   Repository
	notify  *notification.Manager
	audit   *audit.Recorder
	siteURL string
	logger  zerolog.Logger
	now     func() time.Time
}

func NewProvisioner(tx db.TxRunner, tenants *tenant.Service, users Repository, notify *notification.Manager, rec *audit.Recorder, siteURL string, logger zerolog.Logger) *Provisioner {
	return &Provisioner{
		tx:      tx,
		tenants: tenants,
		users:   users,
		notify:  notify,
		audit:   rec,
		siteURL: siteURL,
		logger:  logger.With().Str("component", "account.provisioner").Logger(),
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (p *Provisioner) SetClock(now func() time.Time) {
	p.now = now
}

// Register validates req and provisions the tenant and user atomically.
// Joining a lapsed trial fails with plan.ErrTrialExpired; joining a full
// tenant fails with a *plan.LimitError.
func (p *Provisioner) Register(ctx context.Context, req RegistrationRequest) (*Registration, error) {
	req.normalize()
	mode := req.RegistrationType
	if v := req.Validate(); !v.Empty() {
		p.count(mode, "invalid")
		return nil, v
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var reg *Registration
	err = p.tx.RunInTx(ctx, func(ctx context.Context) error {
		taken, err := p.users.UsernameTaken(ctx, req.Username)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return apperr.Invalid("username", "A user with that username already exists.")
		}
		if mode == RegistrationCreate {
			reg, err = p.create(ctx, req, hash)
		} else {
			reg, err = p.join(ctx, req, hash)
		}
		return err
	})
	if err != nil {
		p.count(mode, outcomeOf(err))
		return nil, err
	}
	p.count(mode, "ok")
	p.afterCommit(ctx, reg)
	return reg, nil
}

func (p *Provisioner) create(ctx context.Context, req RegistrationRequest, hash string) (*Registration, error) {
	t, err := p.tenants.Provision(ctx, tenant.CreateInput{Name: req.TenantName, Specialization: req.Specialization})
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	tenancy.Assign(u, tenancy.Actor{TenantID: t.ID})
	if err := p.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create first user: %w", err)
	}
	return &Registration{
		User:               u,
		Tenant:             t,
		TenantCreated:      true,
		TrialDaysRemaining: plan.TrialDaysRemaining(t, p.now()),
	}, nil
}

func (p *Provisioner) join(ctx context.Context, req RegistrationRequest, hash string) (*Registration, error) {
	t, err := p.lockTenant(ctx, req.Tenant)
	if err != nil {
		return nil, err
	}
	now := p.now()
	n, err := p.users.CountInTenant(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	// A lapsed trial is reported before the user limit.
	if err := plan.CheckCreate(t, plan.Users, n, now); err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = RoleUser
	}
	u := &User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		IsActive:     false,
	}
	tenancy.Assign(u, tenancy.Actor{TenantID: t.ID})
	if err := p.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create joining user: %w", err)
	}
	return &Registration{
		User:               u,
		Tenant:             t,
		PendingApproval:    true,
		TrialDaysRemaining: plan.TrialDaysRemaining(t, now),
	}, nil
}

// lockTenant resolves the join selector and locks the tenant row so
// concurrent joins cannot both pass the user limit.
func (p *Provisioner) lockTenant(ctx context.Context, selector string) (*tenant.Tenant, error) {
	repo := p.tenants.Repo()
	id, err := uuid.Parse(selector)
	if err != nil {
		t, err := repo.GetByName(ctx, selector)
		if err != nil {
			return nil, unknownTenant(err)
		}
		id = t.ID
	}
	t, err := repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, unknownTenant(err)
	}
	if !t.IsActive {
		return nil, apperr.Invalid("tenant", "Select a valid company.")
	}
	return t, nil
}

func unknownTenant(err error) error {
	if errors.Is(err, tenancy.ErrNotFound) {
		return apperr.Invalid("tenant", "Select a valid company.")
	}
	return fmt.Errorf("load tenant: %w", err)
}

func (p *Provisioner) afterCommit(ctx context.Context, reg *Registration) {
	actor := reg.User.Actor()
	action := audit.ActionUserRegistered
	if reg.TenantCreated {
		p.audit.Record(ctx, actor, audit.Entry{
			Action:     audit.ActionTenantCreated,
			Resource:   "tenant",
			ResourceID: reg.Tenant.ID.String(),
			Details:    fmt.Sprintf("Tenant %s created with a %d-day free trial.", reg.Tenant.Name, plan.TrialDays),
		})
	} else {
		action = audit.ActionUserJoined
	}
	p.audit.Record(ctx, actor, audit.Entry{
		Action:     action,
		Resource:   "user",
		ResourceID: reg.User.ID.String(),
		Details:    fmt.Sprintf("User %s registered as %s.", reg.User.Username, reg.User.Role),
	})

	p.logger.Info().
		Str("tenant_id", reg.Tenant.ID.String()).
		Str("user_id", reg.User.ID.String()).
		Bool("tenant_created", reg.TenantCreated).
		Bool("pending_approval", reg.PendingApproval).
		Msg("registration completed")

	if reg.PendingApproval {
		p.notifyAdmins(ctx, reg)
	}
}

func (p *Provisioner) notifyAdmins(ctx context.Context, reg *Registration) {
	if p.notify == nil {
		return
	}
	admins, err := p.users.ListActiveAdmins(ctx, reg.Tenant.ID)
	if err != nil {
		p.logger.Error().Err(err).Str("tenant_id", reg.Tenant.ID.String()).Msg("list admins for approval notice")
		return
	}
	var to []string
	for _, a := range admins {
		to = append(to, a.Email)
	}
	if len(to) == 0 {
		p.logger.Warn().Str("tenant_id", reg.Tenant.ID.String()).Msg("pending user but tenant has no active admin")
		return
	}
	data := map[string]string{
		"new_username":  reg.User.Username,
		"new_email":     reg.User.Email,
		"new_role":      reg.User.Role,
		"registered_at": reg.User.CreatedAt.Format("2006-01-02 15:04 MST"),
		"review_url":    p.siteURL + "/users/pending",
		"tenant_name":   reg.Tenant.Name,
	}
	if err := p.notify.SendFromTemplate(ctx, notification.TplUserPendingApproval, data, to...); err != nil {
		p.logger.Error().Err(err).Str("tenant_id", reg.Tenant.ID.String()).Msg("approval notice failed")
	}
}

func (p *Provisioner) count(mode, outcome string) {
	if mode != RegistrationCreate && mode != RegistrationJoin {
		mode = "unknown"
	}
	metrics.RegistrationsTotal.WithLabelValues(mode, outcome).Inc()
}

func outcomeOf(err error) string {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, plan.ErrTrialExpired):
		return "trial_expired"
	case errors.Is(err, plan.ErrResourceLimitReached):
		return "limit_reached"
	default:
		return "error"
	}
}

// trialNotice is the human summary shown after a successful join.
func trialNotice(reg *Registration) string {
	if reg.TrialDaysRemaining <= 0 {
		return ""
	}
	return strconv.Itoa(reg.TrialDaysRemaining) + " days left in free trial."
}
