package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Gate decides whether a tenant may create one more of a plan-limited
// resource. *tenant.Service satisfies it.
type Gate interface {
	Gate(ctx context.Context, tenantID uuid.UUID, r plan.Resource) error
}

type Service struct {
	repo   Repository
	tx     db.TxRunner
	gate   Gate
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, gate Gate, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, gate: gate, logger: logger, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create registers a patient in the actor's tenant, subject to the plan's
// patient limit and trial state.
func (s *Service) Create(ctx context.Context, actor tenancy.Actor, in Input) (*Patient, error) {
	p := &Patient{}
	if v := in.apply(p, s.now()); v != nil {
		return nil, v
	}
	p = tenancy.Assign(p, actor)
	if p.TenantID == uuid.Nil {
		return nil, tenancy.ErrAccessDenied
	}
	if actor.UserID != uuid.Nil {
		uid := actor.UserID
		p.CreatedBy = &uid
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.gate.Gate(ctx, p.TenantID, plan.Patients); err != nil {
			return err
		}
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	metrics.EntitiesCreatedTotal.WithLabelValues("patient").Inc()
	s.logger.Info().
		Str("tenant_id", p.TenantID.String()).
		Str("patient_id", p.ID.String()).
		Msg("patient created")
	return p, nil
}

// Get returns the patient if the actor may see it. Other stores call this to
// resolve a patient reference before linking to it.
func (s *Service) Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	return tenancy.Resolve(p, err, actor)
}

func (s *Service) List(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

func (s *Service) Update(ctx context.Context, actor tenancy.Actor, id uuid.UUID, in Input) (*Patient, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if v := in.apply(p, s.now()); v != nil {
		return nil, v
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, actor tenancy.Actor, id uuid.UUID) error {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, p.ID, p.TenantID); err != nil {
		return err
	}
	s.logger.Info().
		Str("tenant_id", p.TenantID.String()).
		Str("patient_id", p.ID.String()).
		Msg("patient deleted")
	return nil
}
