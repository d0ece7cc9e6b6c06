package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/reporting"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Patients interface {
	Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*patient.Patient, error)
}

// Features checks tier-gated capabilities. *tenant.Service satisfies it.
type Features interface {
	RequireFeature(ctx context.Context, tenantID uuid.UUID, f plan.Feature) error
}

type Service struct {
	repo     Repository
	tx       db.TxRunner
	patients Patients
	features Features
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, patients Patients, features Features, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, patients: patients, features: features, logger: logger, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create drafts an invoice for a patient in the patient's tenant.
func (s *Service) Create(ctx context.Context, actor tenancy.Actor, in Input) (*Invoice, error) {
	inv := &Invoice{Status: StatusDraft, Number: newNumber()}
	if v := in.apply(inv, s.now()); v != nil {
		return nil, v
	}
	if in.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient_id", "This field is required.")
	}
	p, err := s.patients.Get(ctx, actor, in.PatientID)
	if err != nil {
		return nil, err
	}
	inv = tenancy.Assign(inv, actor)
	if inv.TenantID == uuid.Nil {
		inv.TenantID = p.TenantID
	}
	if inv.TenantID != p.TenantID {
		return nil, tenancy.ErrAccessDenied
	}
	if actor.UserID != uuid.Nil {
		uid := actor.UserID
		inv.CreatedBy = &uid
	}

	if err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, inv)
	}); err != nil {
		return nil, err
	}
	metrics.EntitiesCreatedTotal.WithLabelValues("invoice").Inc()
	s.logger.Info().
		Str("tenant_id", inv.TenantID.String()).
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.Number).
		Str("total", inv.Total.StringFixed(2)).
		Msg("invoice drafted")
	return inv, nil
}

func (s *Service) Get(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, id)
	return tenancy.Resolve(inv, err, actor)
}

func (s *Service) List(ctx context.Context, actor tenancy.Actor, q Query, limit, offset int) ([]*Invoice, int, error) {
	if q.PatientID != nil {
		if _, err := s.patients.Get(ctx, actor, *q.PatientID); err != nil {
			return nil, 0, err
		}
	}
	return s.repo.List(ctx, tenancy.ScopeFilter(actor), q, limit, offset)
}

// Update rewrites a draft's items and terms. The patient cannot change.
func (s *Service) Update(ctx context.Context, actor tenancy.Actor, id uuid.UUID, in Input) (*Invoice, error) {
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusDraft {
		return nil, apperr.Invalid("status", "Only draft invoices can be edited.")
	}
	if in.PatientID != uuid.Nil && in.PatientID != inv.PatientID {
		return nil, apperr.Invalid("patient_id", "The patient of an invoice cannot change.")
	}
	in.PatientID = inv.PatientID
	if v := in.apply(inv, s.now()); v != nil {
		return nil, v
	}
	if err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, inv, true)
	}); err != nil {
		return nil, err
	}
	return inv, nil
}

// Send issues a draft to the patient.
func (s *Service) Send(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, actor, id, StatusSent)
}

// MarkPaid records payment of a sent or overdue invoice.
func (s *Service) MarkPaid(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, actor, id, StatusPaid)
}

func (s *Service) Cancel(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, actor, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, actor tenancy.Actor, id uuid.UUID, to string) (*Invoice, error) {
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(inv.Status, to) {
		return nil, apperr.Invalid("status", fmt.Sprintf("A %s invoice cannot become %s.", inv.Status, to))
	}
	now := s.now().UTC()
	switch to {
	case StatusSent:
		inv.IssuedAt = &now
	case StatusPaid:
		inv.PaidAt = &now
	}
	inv.Status = to
	if err := s.repo.Update(ctx, inv, false); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("tenant_id", inv.TenantID.String()).
		Str("invoice_id", inv.ID.String()).
		Str("status", to).
		Msg("invoice status changed")
	return inv, nil
}

// Balance is what a patient owes across sent and overdue invoices.
type Balance struct {
	PatientID   uuid.UUID       `json:"patient_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func (s *Service) Balance(ctx context.Context, actor tenancy.Actor, patientID uuid.UUID) (*Balance, error) {
	p, err := s.patients.Get(ctx, actor, patientID)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.Outstanding(ctx, p.TenantID, p.ID)
	if err != nil {
		return nil, err
	}
	return &Balance{PatientID: p.ID, Outstanding: sum}, nil
}

// PDF renders the invoice. Requires the billing management feature.
func (s *Service) PDF(ctx context.Context, actor tenancy.Actor, id uuid.UUID) (*Invoice, []byte, error) {
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.features.RequireFeature(ctx, inv.TenantID, plan.FeatureBillingManagement); err != nil {
		return nil, nil, err
	}
	p, err := s.patients.Get(ctx, actor, inv.PatientID)
	if err != nil {
		return nil, nil, err
	}
	out, err := reporting.RenderPDF(document(inv, p))
	if err != nil {
		return nil, nil, fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return inv, out, nil
}

func document(inv *Invoice, p *patient.Patient) reporting.Document {
	issued := "not issued"
	if inv.IssuedAt != nil {
		issued = inv.IssuedAt.Format("2 January 2006")
	}
	rows := make([][]any, 0, len(inv.Items))
	for _, it := range inv.Items {
		rows = append(rows, []any{it.Description, it.ServiceType, it.Quantity, it.UnitPrice.StringFixed(2), it.Total.StringFixed(2)})
	}
	return reporting.Document{
		Title:    "Invoice " + inv.Number,
		Subtitle: "Status: " + inv.Status,
		Fields: []reporting.Field{
			{Label: "Patient", Value: p.FullName()},
			{Label: "Issued", Value: issued},
			{Label: "Due", Value: inv.DueAt.Format("2 January 2006")},
		},
		Table: reporting.Table{
			Headers: []string{"Description", "Service", "Qty", "Unit price", "Total"},
			Rows:    rows,
			Widths:  []float64{60, 22, 10, 20, 20},
		},
		Totals: []reporting.Field{
			{Label: "Subtotal", Value: inv.Subtotal.StringFixed(2)},
			{Label: "Tax", Value: inv.Tax.StringFixed(2)},
			{Label: "Total due", Value: inv.Currency + " " + inv.Total.StringFixed(2)},
		},
		Footer: inv.Notes,
	}
}

// MarkOverdue moves sent invoices past their due date to overdue. It runs
// as a system job across all tenants.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := s.repo.MarkOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("count", n).Msg("invoices marked overdue")
	return n, nil
}
