package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Patients resolves a patient reference for an actor. *patient.Service
// satisfies it.
type Patients interface {
	Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	records   RecordRepository
	labs      LabRepository
	referrals ReferralRepository
	patients  Patients
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(records RecordRepository, labs LabRepository, referrals ReferralRepository, patients Patients, logger zerolog.Logger) *Service {
	return &Service{
		records:   records,
		labs:      labs,
		referrals: referrals,
		patients:  patients,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// bind stamps e with the actor's tenant and links it to the referenced
// patient, which must be visible to the actor and in the same tenant.
// Platform operators without a tenant create in the patient's tenant.
func bind[T tenancy.Owned](ctx context.Context, ps Patients, actor tenancy.Actor, e T, patientID uuid.UUID) (uuid.UUID, error) {
	if patientID == uuid.Nil {
		return uuid.Nil, apperr.Invalid("patient_id", "This field is required.")
	}
	p, err := ps.Get(ctx, actor, patientID)
	if err != nil {
		return uuid.Nil, err
	}
	e = tenancy.Assign(e, actor)
	if e.OwnerTenant() == uuid.Nil {
		e.SetOwnerTenant(p.TenantID)
	}
	if e.OwnerTenant() != p.TenantID {
		return uuid.Nil, tenancy.ErrAccessDenied
	}
	return p.ID, nil
}

func (s *Service) scopePatient(ctx context.Context, actor tenancy.Actor, q Query) error {
	if q.PatientID == nil {
		return nil
	}
	_, err := s.patients.Get(ctx, actor, *q.PatientID)
	return err
}

func actorRef(actor tenancy.Actor) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

// -- Clinical records --

func (s *Service) CreateRecord(ctx context.Context, actor tenancy.Actor, in RecordInput) (*ClinicalRecord, error) {
	rec := &ClinicalRecord{AuthorID: actorRef(actor)}
	if v := in.apply(rec, s.now()); v != nil {
		return nil, v
	}
	pid, err := bind(ctx, s.patients, actor, rec, in.PatientID)
	if err != nil {
		return nil, err
	}
	rec.PatientID = pid
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	metrics.EntitiesCreatedTotal.WithLabelValues("clinical_record").Inc()
	s.logger.Info().
		Str("tenant_id", rec.TenantID.String()).
		Str("record_id", rec.ID.String()).
		Msg("clinical record created")
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*ClinicalRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	return tenancy.Resolve(rec, err, actor)
}

func (s *Service) ListRecords(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*ClinicalRecord, int, error) {
	if err := s.scopePatient(ctx, actor, q); err != nil {
		return nil, 0, err
	}
	return s.records.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

func (s *Service) UpdateRecord(ctx context.Context, actor tenancy.Actor, id uuid.UUID, in RecordInput) (*ClinicalRecord, error) {
	rec, err := s.GetRecord(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if v := in.apply(rec, s.now()); v != nil {
		return nil, v
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) DeleteRecord(ctx context.Context, actor tenancy.Actor, id uuid.UUID) error {
	rec, err := s.GetRecord(ctx, actor, id)
	if err != nil {
		return err
	}
	return s.records.Delete(ctx, rec.ID, rec.TenantID)
}

// -- Lab results --

func (s *Service) CreateLab(ctx context.Context, actor tenancy.Actor, in LabInput) (*LabResult, error) {
	lab := &LabResult{}
	if v := in.apply(lab, s.now()); v != nil {
		return nil, v
	}
	pid, err := bind(ctx, s.patients, actor, lab, in.PatientID)
	if err != nil {
		return nil, err
	}
	lab.PatientID = pid
	if err := s.labs.Create(ctx, lab); err != nil {
		return nil, err
	}
	metrics.EntitiesCreatedTotal.WithLabelValues("lab_result").Inc()
	return lab, nil
}

func (s *Service) GetLab(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*LabResult, error) {
	lab, err := s.labs.GetByID(ctx, id)
	return tenancy.Resolve(lab, err, actor)
}

func (s *Service) ListLabs(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*LabResult, int, error) {
	if err := s.scopePatient(ctx, actor, q); err != nil {
		return nil, 0, err
	}
	return s.labs.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

// UpdateLab revises a result. Moving to completed stamps the report time.
func (s *Service) UpdateLab(ctx context.Context, actor tenancy.Actor, id uuid.UUID, in LabInput) (*LabResult, error) {
	lab, err := s.GetLab(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if v := in.apply(lab, s.now()); v != nil {
		return nil, v
	}
	if err := s.labs.Update(ctx, lab); err != nil {
		return nil, err
	}
	return lab, nil
}

// -- Referrals --

func (s *Service) CreateReferral(ctx context.Context, actor tenancy.Actor, in ReferralInput) (*Referral, error) {
	ref := &Referral{ReferredBy: actorRef(actor)}
	if v := in.apply(ref); v != nil {
		return nil, v
	}
	pid, err := bind(ctx, s.patients, actor, ref, in.PatientID)
	if err != nil {
		return nil, err
	}
	ref.PatientID = pid
	if err := s.referrals.Create(ctx, ref); err != nil {
		return nil, err
	}
	metrics.EntitiesCreatedTotal.WithLabelValues("referral").Inc()
	return ref, nil
}

func (s *Service) GetReferral(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Referral, error) {
	ref, err := s.referrals.GetByID(ctx, id)
	return tenancy.Resolve(ref, err, actor)
}

func (s *Service) ListReferrals(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*Referral, int, error) {
	if err := s.scopePatient(ctx, actor, q); err != nil {
		return nil, 0, err
	}
	return s.referrals.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

func (s *Service) UpdateReferral(ctx context.Context, actor tenancy.Actor, id uuid.UUID, in ReferralInput) (*Referral, error) {
	ref, err := s.GetReferral(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if v := in.apply(ref); v != nil {
		return nil, v
	}
	if err := s.referrals.Update(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}
