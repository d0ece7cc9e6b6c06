package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/account"
	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Patients interface {
	Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*patient.Patient, error)
}

type Staff interface {
	Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*account.User, error)
}

type Gate interface {
	Gate(ctx context.Context, tenantID uuid.UUID, r plan.Resource) error
}

type Service struct {
	repo     Repository
	tx       db.TxRunner
	gate     Gate
	patients Patients
	staff    Staff
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, gate Gate, patients Patients, staff Staff, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		gate:     gate,
		patients: patients,
		staff:    staff,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// checkClinician verifies the clinician is an active member of tenantID.
func (s *Service) checkClinician(ctx context.Context, actor tenancy.Actor, tenantID uuid.UUID, id *uuid.UUID) error {
	if id == nil || s.staff == nil {
		return nil
	}
	u, err := s.staff.Get(ctx, actor, *id)
	if err != nil {
		return err
	}
	if u.TenantID != tenantID {
		return tenancy.ErrAccessDenied
	}
	if !u.IsActive {
		return apperr.Invalid("clinician_id", "Clinician account is not active.")
	}
	return nil
}

func (s *Service) checkOverlap(ctx context.Context, a *Appointment) error {
	if a.ClinicianID == nil {
		return nil
	}
	busy, err := s.repo.Overlaps(ctx, a.TenantID, *a.ClinicianID, a.ScheduledAt, a.EndsAt(), a.ID)
	if err != nil {
		return err
	}
	if busy {
		return apperr.Invalid("scheduled_at", "The clinician already has an appointment at this time.")
	}
	return nil
}

// Book creates an appointment for a patient of the actor's tenant, subject
// to the plan's appointment limit.
func (s *Service) Book(ctx context.Context, actor tenancy.Actor, in Input) (*Appointment, error) {
	a := &Appointment{}
	if v := in.apply(a, s.now()); v != nil {
		return nil, v
	}
	if in.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient_id", "This field is required.")
	}
	p, err := s.patients.Get(ctx, actor, in.PatientID)
	if err != nil {
		return nil, err
	}
	a = tenancy.Assign(a, actor)
	if a.TenantID == uuid.Nil {
		a.TenantID = p.TenantID
	}
	if a.TenantID != p.TenantID {
		return nil, tenancy.ErrAccessDenied
	}
	a.PatientID = p.ID
	if err := s.checkClinician(ctx, actor, a.TenantID, a.ClinicianID); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.gate.Gate(ctx, a.TenantID, plan.Appointments); err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, a); err != nil {
			return err
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	metrics.EntitiesCreatedTotal.WithLabelValues("appointment").Inc()
	s.logger.Info().
		Str("tenant_id", a.TenantID.String()).
		Str("appointment_id", a.ID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Msg("appointment booked")
	return a, nil
}

func (s *Service) Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	return tenancy.Resolve(a, err, actor)
}

func (s *Service) List(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*Appointment, int, error) {
	if q.PatientID != nil {
		if _, err := s.patients.Get(ctx, actor, *q.PatientID); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

// Reschedule moves an appointment that is still scheduled or confirmed.
func (s *Service) Reschedule(ctx context.Context, actor tenancy.Actor, id uuid.UUID, in Input) (*Appointment, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return nil, apperr.Invalid("status", "Only scheduled or confirmed appointments can be rescheduled.")
	}
	if v := in.apply(a, s.now()); v != nil {
		return nil, v
	}
	if err := s.checkClinician(ctx, actor, a.TenantID, a.ClinicianID); err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkOverlap(ctx, a); err != nil {
			return err
		}
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetStatus moves an appointment along its lifecycle.
func (s *Service) SetStatus(ctx context.Context, actor tenancy.Actor, id uuid.UUID, status string) (*Appointment, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, status) {
		return nil, apperr.Invalid("status", "Cannot move an appointment from "+a.Status+" to "+status+".")
	}
	a.Status = status
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("tenant_id", a.TenantID.String()).
		Str("appointment_id", a.ID.String()).
		Str("status", status).
		Msg("appointment status changed")
	return a, nil
}
