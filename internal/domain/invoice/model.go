package invoice

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
)

const (
	StatusDraft     = "draft"
	StatusSent      = "sent"
	StatusPaid      = "paid"
	StatusOverdue   = "overdue"
	StatusCancelled = "cancelled"
)

const (
	defaultCurrency = "GBP"
	defaultTermDays = 30
	maxItems        = 100
)

var transitions = map[string][]string{
	StatusDraft:   {StatusSent, StatusCancelled},
	StatusSent:    {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

// CanTransition reports whether an invoice may move between statuses.
// Paid and cancelled are terminal.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var serviceTypes = map[string]bool{
	"consultation": true,
	"procedure":    true,
	"test":         true,
	"medication":   true,
	"imaging":      true,
	"other":        true,
}

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	ServiceType string          `json:"service_type"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Invoice bills a patient for services. Money is held to two decimal places.
type Invoice struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	PatientID uuid.UUID       `json:"patient_id"`
	Number    string          `json:"invoice_number"`
	Status    string          `json:"status"`
	Currency  string          `json:"currency"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	IssuedAt  *time.Time      `json:"issued_at,omitempty"`
	DueAt     time.Time       `json:"due_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Items     []LineItem      `json:"items,omitempty"`
}

func (i *Invoice) OwnerTenant() uuid.UUID      { return i.TenantID }
func (i *Invoice) SetOwnerTenant(id uuid.UUID) { i.TenantID = id }

// Outstanding reports whether the invoice is owed by the patient.
func (i *Invoice) Outstanding() bool {
	return i.Status == StatusSent || i.Status == StatusOverdue
}

// recalculate derives line totals, the subtotal and the total from the items
// and tax.
func (i *Invoice) recalculate() {
	sub := decimal.Zero
	for k := range i.Items {
		it := &i.Items[k]
		it.Total = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		sub = sub.Add(it.Total)
	}
	i.Subtotal = sub
	i.Tax = i.Tax.Round(2)
	i.Total = sub.Add(i.Tax)
}

// newNumber returns a unique, time-ordered invoice number.
func newNumber() string {
	return "INV-" + ulid.Make().String()
}

type ItemInput struct {
	ServiceType string          `json:"service_type"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Input struct {
	PatientID uuid.UUID       `json:"patient_id"`
	DueDate   string          `json:"due_date"`
	Currency  string          `json:"currency"`
	Tax       decimal.Decimal `json:"tax"`
	Notes     string          `json:"notes"`
	Items     []ItemInput     `json:"items"`
}

func (in Input) apply(inv *Invoice, now time.Time) *apperr.ValidationError {
	v := apperr.NewValidation()

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if !currencyRe.MatchString(currency) {
		v.Add("currency", "Use a three-letter ISO currency code.")
	}

	today := now.UTC().Truncate(24 * time.Hour)
	due := today.AddDate(0, 0, defaultTermDays)
	if in.DueDate != "" {
		d, err := time.Parse("2006-01-02", in.DueDate)
		switch {
		case err != nil:
			v.Add("due_date", "Use the YYYY-MM-DD format.")
		case d.Before(today):
			v.Add("due_date", "The due date cannot be in the past.")
		default:
			due = d
		}
	}

	if in.Tax.IsNegative() {
		v.Add("tax", "Tax cannot be negative.")
	}
	if len(in.Notes) > 2000 {
		v.Add("notes", "Notes are limited to 2000 characters.")
	}

	switch {
	case len(in.Items) == 0:
		v.Add("items", "At least one line item is required.")
	case len(in.Items) > maxItems:
		v.Add("items", fmt.Sprintf("An invoice holds at most %d line items.", maxItems))
	}
	items := make([]LineItem, 0, len(in.Items))
	for n, it := range in.Items {
		field := fmt.Sprintf("items[%d]", n)
		desc := strings.TrimSpace(it.Description)
		if desc == "" || len(desc) > 255 {
			v.Add(field+".description", "A description of up to 255 characters is required.")
		}
		st := it.ServiceType
		if st == "" {
			st = "other"
		}
		if !serviceTypes[st] {
			v.Add(field+".service_type", "Unknown service type.")
		}
		qty := it.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			v.Add(field+".quantity", "Quantity must be positive.")
		}
		if it.UnitPrice.IsNegative() {
			v.Add(field+".unit_price", "Unit price cannot be negative.")
		}
		items = append(items, LineItem{
			ID:          uuid.New(),
			ServiceType: st,
			Description: desc,
			Quantity:    qty,
			UnitPrice:   it.UnitPrice.Round(2),
		})
	}

	if !v.Empty() {
		return v
	}
	inv.PatientID = in.PatientID
	inv.Currency = currency
	inv.DueAt = due
	inv.Tax = in.Tax
	inv.Notes = strings.TrimSpace(in.Notes)
	inv.Items = items
	inv.recalculate()
	return nil
}

type Query struct {
	PatientID *uuid.UUID
	Status    string
}

func (q Query) matches(i *Invoice) bool {
	if q.PatientID != nil && i.PatientID != *q.PatientID {
		return false
	}
	return q.Status == "" || i.Status == q.Status
}
