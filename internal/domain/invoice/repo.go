package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type Repository interface {
	// Create inserts the invoice and its line items.
	Create(ctx context.Context, inv *Invoice) error
	// GetByID returns the invoice with its line items.
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// List returns invoices without line items.
	List(ctx context.Context, f tenancy.Filter, q Query, limit, offset int) ([]*Invoice, int, error)
	// Update writes status, dates, totals and notes, and replaces the line
	// items when replaceItems is set.
	Update(ctx context.Context, inv *Invoice, replaceItems bool) error
	// Outstanding sums the totals of sent and overdue invoices for a patient.
	Outstanding(ctx context.Context, tenantID, patientID uuid.UUID) (decimal.Decimal, error)
	// MarkOverdue moves sent invoices due before now to overdue in every
	// tenant and returns how many changed.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}
