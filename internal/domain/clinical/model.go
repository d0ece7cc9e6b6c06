package clinical

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
)

// ClinicalRecord is one visit note for a patient.
type ClinicalRecord struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	PatientID uuid.UUID  `json:"patient_id"`
	AuthorID  *uuid.UUID `json:"author_id,omitempty"`
	VisitDate time.Time  `json:"visit_date"`
	Diagnosis string     `json:"diagnosis,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Treatment string     `json:"treatment,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r *ClinicalRecord) OwnerTenant() uuid.UUID      { return r.TenantID }
func (r *ClinicalRecord) SetOwnerTenant(id uuid.UUID) { r.TenantID = id }

type LabResult struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	TestName       string     `json:"test_name"`
	ResultValue    string     `json:"result_value,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	ReferenceRange string     `json:"reference_range,omitempty"`
	Status         string     `json:"status"`
	CollectedAt    *time.Time `json:"collected_at,omitempty"`
	ReportedAt     *time.Time `json:"reported_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (l *LabResult) OwnerTenant() uuid.UUID      { return l.TenantID }
func (l *LabResult) SetOwnerTenant(id uuid.UUID) { l.TenantID = id }

type Referral struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	ReferredBy *uuid.UUID `json:"referred_by,omitempty"`
	ReferredTo string     `json:"referred_to"`
	Specialty  string     `json:"specialty,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Urgency    string     `json:"urgency"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (r *Referral) OwnerTenant() uuid.UUID      { return r.TenantID }
func (r *Referral) SetOwnerTenant(id uuid.UUID) { r.TenantID = id }

var validLabStatuses = map[string]bool{
	"pending":     true,
	"in_progress": true,
	"completed":   true,
	"cancelled":   true,
}

var validUrgencies = map[string]bool{
	"routine":   true,
	"urgent":    true,
	"emergency": true,
}

// referralTransitions lists the statuses each referral status may move to.
var referralTransitions = map[string][]string{
	"pending":  {"accepted", "declined", "cancelled"},
	"accepted": {"completed", "cancelled"},
}

func canMoveReferral(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range referralTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type RecordInput struct {
	PatientID uuid.UUID  `json:"patient_id"`
	VisitDate *time.Time `json:"visit_date"`
	Diagnosis string     `json:"diagnosis"`
	Notes     string     `json:"notes"`
	Treatment string     `json:"treatment"`
}

func (in RecordInput) apply(r *ClinicalRecord, now time.Time) *apperr.ValidationError {
	v := apperr.NewValidation()
	if in.VisitDate != nil && in.VisitDate.After(now.Add(24*time.Hour)) {
		v.Add("visit_date", "Visit date cannot be in the future.")
	}
	if strings.TrimSpace(in.Diagnosis) == "" && strings.TrimSpace(in.Notes) == "" {
		v.Add("notes", "A diagnosis or notes are required.")
	}
	if !v.Empty() {
		return v
	}
	if in.VisitDate != nil {
		r.VisitDate = in.VisitDate.UTC()
	} else if r.VisitDate.IsZero() {
		r.VisitDate = now.UTC()
	}
	r.Diagnosis = strings.TrimSpace(in.Diagnosis)
	r.Notes = strings.TrimSpace(in.Notes)
	r.Treatment = strings.TrimSpace(in.Treatment)
	return nil
}

type LabInput struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	TestName       string     `json:"test_name"`
	ResultValue    string     `json:"result_value"`
	Unit           string     `json:"unit"`
	ReferenceRange string     `json:"reference_range"`
	Status         string     `json:"status"`
	CollectedAt    *time.Time `json:"collected_at"`
}

func (in LabInput) apply(l *LabResult, now time.Time) *apperr.ValidationError {
	v := apperr.NewValidation()
	name := strings.TrimSpace(in.TestName)
	if name == "" {
		v.Add("test_name", "This field is required.")
	}
	status := in.Status
	if status == "" {
		status = l.Status
	}
	if status == "" {
		status = "pending"
	}
	if !validLabStatuses[status] {
		v.Add("status", "Must be one of pending, in_progress, completed, cancelled.")
	}
	if status == "completed" && strings.TrimSpace(in.ResultValue) == "" {
		v.Add("result_value", "A completed result needs a value.")
	}
	if !v.Empty() {
		return v
	}
	l.TestName = name
	l.ResultValue = strings.TrimSpace(in.ResultValue)
	l.Unit = strings.TrimSpace(in.Unit)
	l.ReferenceRange = strings.TrimSpace(in.ReferenceRange)
	l.CollectedAt = in.CollectedAt
	if status == "completed" && l.Status != "completed" {
		t := now.UTC()
		l.ReportedAt = &t
	}
	l.Status = status
	return nil
}

type ReferralInput struct {
	PatientID  uuid.UUID `json:"patient_id"`
	ReferredTo string    `json:"referred_to"`
	Specialty  string    `json:"specialty"`
	Reason     string    `json:"reason"`
	Urgency    string    `json:"urgency"`
	Status     string    `json:"status"`
}

func (in ReferralInput) apply(r *Referral) *apperr.ValidationError {
	v := apperr.NewValidation()
	to := strings.TrimSpace(in.ReferredTo)
	if to == "" {
		v.Add("referred_to", "This field is required.")
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = "routine"
	}
	if !validUrgencies[urgency] {
		v.Add("urgency", "Must be one of routine, urgent, emergency.")
	}
	status := in.Status
	if r.Status == "" {
		if status != "" && status != "pending" {
			v.Add("status", "New referrals start as pending.")
		}
		status = "pending"
	} else if status == "" {
		status = r.Status
	} else if !canMoveReferral(r.Status, status) {
		v.Add("status", "Cannot move a referral from "+r.Status+" to "+status+".")
	}
	if !v.Empty() {
		return v
	}
	r.ReferredTo = to
	r.Specialty = strings.TrimSpace(in.Specialty)
	r.Reason = strings.TrimSpace(in.Reason)
	r.Urgency = urgency
	r.Status = status
	return nil
}

// Query narrows a scoped listing of any clinical entity.
type Query struct {
	PatientID *uuid.UUID
	Status    string
	Search    string
}
