package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// ErrNameTaken is reported when a tenant name is already registered,
// compared case-insensitively.
var ErrNameTaken = errors.New("tenant name already exists")

type Service struct {
	repo   Repository
	usage  UsageCounter
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, usage UsageCounter, logger zerolog.Logger) *Service {
	return &Service{repo: repo, usage: usage, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Repo exposes the underlying repository to collaborating services.
func (s *Service) Repo() Repository {
	return s.repo
}

// CreateInput is the operator or registration request for a new tenant.
type CreateInput struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

func (in CreateInput) validate() *apperr.ValidationError {
	v := apperr.NewValidation()
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		v.Add("tenant_name", "company name is required")
	case utf8.RuneCountInString(name) > 100:
		v.Add("tenant_name", "company name must be at most 100 characters")
	}
	if in.Specialization != "" {
		if _, ok := Specializations[in.Specialization]; !ok {
			v.Add("specialization", "unknown specialization")
		}
	}
	return v
}

// Provision creates a tenant on a fresh free trial. It is the only path that
// ever puts a tenant on free_trial.
func (s *Service) Provision(ctx context.Context, in CreateInput) (*Tenant, error) {
	if v := in.validate(); !v.Empty() {
		return nil, v
	}
	name := strings.TrimSpace(in.Name)

	taken, err := s.repo.NameTaken(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check tenant name: %w", err)
	}
	if taken {
		return nil, apperr.Invalid("tenant_name",
			fmt.Sprintf("Company '%s' already exists. Please join it or choose a different name.", name))
	}

	sub, err := UniqueSubdomain(ctx, s.repo, name)
	if err != nil {
		return nil, err
	}

	t := &Tenant{
		Name:           name,
		Subdomain:      sub,
		Specialization: in.Specialization,
		IsActive:       true,
	}
	if t.Specialization == "" {
		t.Specialization = DefaultSpecialization
	}
	t.StartTrial(s.now())

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	s.logger.Info().
		Str("tenant_id", t.ID.String()).
		Str("subdomain", t.Subdomain).
		Time("trial_ends", *t.TrialEndedAt).
		Msg("tenant provisioned")
	return t, nil
}

// Create is the platform operator's tenant creation.
func (s *Service) Create(ctx context.Context, actor tenancy.Actor, in CreateInput) (*Tenant, error) {
	if !actor.PlatformAdmin {
		return nil, tenancy.ErrAccessDenied
	}
	return s.Provision(ctx, in)
}

// Get returns a tenant the actor belongs to, or any tenant for a platform
// operator.
func (s *Service) Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Tenant, error) {
	if !actor.PlatformAdmin && actor.TenantID != id {
		return nil, tenancy.ErrAccessDenied
	}
	t, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, tenancy.ErrNotFound) {
		return nil, tenancy.ErrAccessDenied
	}
	return t, err
}

// List returns every tenant to a platform operator and only the actor's own
// tenant to anyone else.
func (s *Service) List(ctx context.Context, actor tenancy.Actor, limit, offset int) ([]*Tenant, int, error) {
	if actor.PlatformAdmin {
		return s.repo.List(ctx, limit, offset)
	}
	t, err := s.Get(ctx, actor, actor.TenantID)
	if err != nil {
		return nil, 0, err
	}
	return []*Tenant{t}, 1, nil
}

// Directory lists active tenants for the join form.
func (s *Service) Directory(ctx context.Context) ([]Summary, error) {
	tenants, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, Summary{ID: t.ID, Name: t.Name})
	}
	return out, nil
}

// Status reports the actor's tenant with its trial and usage figures.
func (s *Service) Status(ctx context.Context, actor tenancy.Actor) (*Status, error) {
	t, err := s.Get(ctx, actor, actor.TenantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	details, _ := plan.Lookup(t.Plan)
	st := &Status{
		Tenant:             t,
		InFreeTrial:        plan.IsInFreeTrial(t, now),
		TrialDaysRemaining: plan.TrialDaysRemaining(t, now),
		CanPerformActions:  plan.CanPerformGatedAction(t, now),
		Plan:               details,
	}
	if s.usage != nil {
		usage, err := Usage(ctx, s.usage, t.ID)
		if err != nil {
			return nil, err
		}
		st.Usage = usage
	}
	return st, nil
}

// SetActive enables or disables a tenant. Platform operators only.
func (s *Service) SetActive(ctx context.Context, actor tenancy.Actor, id uuid.UUID, active bool) error {
	if !actor.PlatformAdmin {
		return tenancy.ErrAccessDenied
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.logger.Info().Str("tenant_id", id.String()).Bool("active", active).Msg("tenant activation changed")
	return nil
}

// RequireFeature fails with plan.ErrFeatureUnavailable unless the tenant's
// tier includes f.
func (s *Service) RequireFeature(ctx context.Context, tenantID uuid.UUID, f plan.Feature) error {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant for feature check: %w", err)
	}
	if err := plan.RequireFeature(t, f); err != nil {
		metrics.GateDenialsTotal.WithLabelValues(string(f), "feature_unavailable").Inc()
		return err
	}
	return nil
}

// Gate checks whether one more r may be created in tenantID. Inside a
// transaction the tenant row is locked, so the count and the caller's insert
// are serialized against other creates in the same tenant.
func (s *Service) Gate(ctx context.Context, tenantID uuid.UUID, r plan.Resource) error {
	load := s.repo.GetByID
	if db.TxFromContext(ctx) != nil {
		load = s.repo.GetForUpdate
	}
	t, err := load(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant for gate: %w", err)
	}
	n, err := s.usage.Count(ctx, tenantID, r)
	if err != nil {
		return fmt.Errorf("count %s: %w", r, err)
	}
	if err := plan.CheckCreate(t, r, n, s.now()); err != nil {
		reason := "limit_reached"
		if errors.Is(err, plan.ErrTrialExpired) {
			reason = "trial_expired"
		}
		metrics.GateDenialsTotal.WithLabelValues(string(r), reason).Inc()
		s.logger.Info().
			Str("tenant_id", tenantID.String()).
			Str("resource", string(r)).
			Int("current", n).
			Err(err).
			Msg("plan gate denied create")
		return err
	}
	return nil
}
