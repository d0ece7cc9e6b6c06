// Package reporting evaluates tenant-scoped measures and renders tabular
// reports as XLSX workbooks or PDF documents.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
)

// MeasureDefinition is a single-value count. SQL takes the tenant id as $1
// and the window start as $2.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

// Value is an evaluated measure.
type Value struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// PredefinedMeasures backs the analytics dashboard.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patients-total",
		Name:        "Patients",
		Description: "Patients registered in the practice",
		SQL:         `SELECT COUNT(*) FROM patient WHERE tenant_id = $1 AND $2::timestamptz IS NOT NULL`,
	},
	{
		ID:          "patients-new",
		Name:        "New patients",
		Description: "Patients registered since the window start",
		SQL:         `SELECT COUNT(*) FROM patient WHERE tenant_id = $1 AND created_at >= $2`,
	},
	{
		ID:          "appointments-total",
		Name:        "Appointments",
		Description: "All appointments ever booked",
		SQL:         `SELECT COUNT(*) FROM appointment WHERE tenant_id = $1 AND $2::timestamptz IS NOT NULL`,
	},
	{
		ID:          "appointments-upcoming",
		Name:        "Upcoming appointments",
		Description: "Scheduled or confirmed appointments in the future",
		SQL: `SELECT COUNT(*) FROM appointment WHERE tenant_id = $1 AND $2::timestamptz IS NOT NULL
			AND scheduled_at >= NOW() AND status IN ('scheduled', 'confirmed')`,
	},
	{
		ID:          "appointments-completed",
		Name:        "Completed appointments",
		Description: "Appointments completed since the window start",
		SQL:         `SELECT COUNT(*) FROM appointment WHERE tenant_id = $1 AND scheduled_at >= $2 AND status = 'completed'`,
	},
	{
		ID:          "clinical-records",
		Name:        "Clinical records",
		Description: "Clinical records written since the window start",
		SQL:         `SELECT COUNT(*) FROM clinical_record WHERE tenant_id = $1 AND created_at >= $2`,
	},
	{
		ID:          "lab-results",
		Name:        "Lab results",
		Description: "Lab results ordered since the window start",
		SQL:         `SELECT COUNT(*) FROM lab_result WHERE tenant_id = $1 AND created_at >= $2`,
	},
	{
		ID:          "active-users",
		Name:        "Active users",
		Description: "Approved user accounts",
		SQL:         `SELECT COUNT(*) FROM app_user WHERE tenant_id = $1 AND $2::timestamptz IS NOT NULL AND is_active`,
	},
	{
		ID:          "invoices-outstanding",
		Name:        "Outstanding invoices",
		Description: "Invoices sent or overdue and not yet paid",
		SQL:         `SELECT COUNT(*) FROM patient_invoice WHERE tenant_id = $1 AND $2::timestamptz IS NOT NULL AND status IN ('sent', 'overdue')`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Evaluate runs every measure for one tenant. A tenant id is required; there
// is no cross-tenant evaluation.
func Evaluate(ctx context.Context, q db.Queryable, tenantID uuid.UUID, since time.Time, measures []MeasureDefinition) ([]Value, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("reporting: tenant id required")
	}
	out := make([]Value, 0, len(measures))
	for _, m := range measures {
		var n int64
		if err := q.QueryRow(ctx, m.SQL, tenantID, since).Scan(&n); err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", m.ID, err)
		}
		out = append(out, Value{ID: m.ID, Name: m.Name, Value: n})
	}
	return out, nil
}
