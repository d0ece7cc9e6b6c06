package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCheckedIn = "checked_in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

const (
	defaultDuration = 30
	maxDuration     = 8 * 60
)

// transitions lists where each status may move. Completed, cancelled and
// no-show are terminal.
var transitions = map[string][]string{
	StatusScheduled: {StatusConfirmed, StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an appointment may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	ClinicianID *uuid.UUID `json:"clinician_id,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	DurationMin int        `json:"duration_min"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (a *Appointment) OwnerTenant() uuid.UUID      { return a.TenantID }
func (a *Appointment) SetOwnerTenant(id uuid.UUID) { a.TenantID = id }

// EndsAt is the end of the booked slot.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMin) * time.Minute)
}

// Active reports whether the appointment still holds its slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled && a.Status != StatusNoShow
}

// Input books or reschedules an appointment. PatientID is only read on
// create.
type Input struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	ClinicianID *uuid.UUID `json:"clinician_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	DurationMin int        `json:"duration_min"`
	Reason      string     `json:"reason"`
}

func (in Input) apply(a *Appointment, now time.Time) *apperr.ValidationError {
	v := apperr.NewValidation()
	if in.ScheduledAt.IsZero() {
		v.Add("scheduled_at", "This field is required.")
	} else if in.ScheduledAt.Before(now) && !in.ScheduledAt.Equal(a.ScheduledAt) {
		v.Add("scheduled_at", "Appointments cannot be booked in the past.")
	}
	d := in.DurationMin
	if d == 0 {
		d = defaultDuration
	}
	if d < 5 || d > maxDuration {
		v.Add("duration_min", "Duration must be between 5 and 480 minutes.")
	}
	if !v.Empty() {
		return v
	}
	a.ClinicianID = in.ClinicianID
	a.ScheduledAt = in.ScheduledAt.UTC()
	a.DurationMin = d
	a.Reason = strings.TrimSpace(in.Reason)
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	return nil
}

type Query struct {
	PatientID   *uuid.UUID
	ClinicianID *uuid.UUID
	Status      string
	From        *time.Time
	To          *time.Time
}
