package clinical

import (
	"context"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Updates match on id and tenant and never write tenant_id or patient_id.
type RecordRepository interface {
	Create(ctx context.Context, r *ClinicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error)
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*ClinicalRecord, int, error)
	Update(ctx context.Context, r *ClinicalRecord) error
	Delete(ctx context.Context, id, tenantID uuid.UUID) error
}

type LabRepository interface {
	Create(ctx context.Context, l *LabResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*LabResult, int, error)
	Update(ctx context.Context, l *LabResult) error
}

type ReferralRepository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Referral, int, error)
	Update(ctx context.Context, r *Referral) error
}
