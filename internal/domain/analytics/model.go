package analytics

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventLogin                = "login"
	EventPatientView          = "patient_view"
	EventPatientCreate        = "patient_create"
	EventPatientEdit          = "patient_edit"
	EventAppointmentCreate    = "appointment_create"
	EventAppointmentEdit      = "appointment_edit"
	EventAppointmentCancel    = "appointment_cancel"
	EventClinicalRecordCreate = "clinical_record_create"
	EventClinicalRecordView   = "clinical_record_view"
	EventLabResultCreate      = "lab_result_create"
	EventLabResultView        = "lab_result_view"
	EventDocumentUpload       = "document_upload"
	EventReferralCreate       = "referral_create"
	EventPaymentReceived      = "payment_received"
	EventReportGenerated      = "report_generated"
	EventOther                = "other"
)

var eventTypes = map[string]bool{
	EventLogin: true, EventPatientView: true, EventPatientCreate: true, EventPatientEdit: true,
	EventAppointmentCreate: true, EventAppointmentEdit: true, EventAppointmentCancel: true,
	EventClinicalRecordCreate: true, EventClinicalRecordView: true,
	EventLabResultCreate: true, EventLabResultView: true,
	EventDocumentUpload: true, EventReferralCreate: true, EventPaymentReceived: true,
	EventReportGenerated: true, EventOther: true,
}

// Event is one tracked user action inside a tenant.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Type      string         `json:"event_type"`
	Resource  string         `json:"resource,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e *Event) OwnerTenant() uuid.UUID      { return e.TenantID }
func (e *Event) SetOwnerTenant(id uuid.UUID) { e.TenantID = id }

type Query struct {
	Type   string
	UserID *uuid.UUID
	Since  *time.Time
}

func (q Query) matches(e *Event) bool {
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.UserID != nil && (e.UserID == nil || *e.UserID != *q.UserID) {
		return false
	}
	return q.Since == nil || !e.CreatedAt.Before(*q.Since)
}
