package patient

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
)

const dateLayout = "2006-01-02"

var genders = map[string]bool{"": true, "female": true, "male": true, "other": true, "unknown": true}

type Patient struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Address     string     `json:"address,omitempty"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (p *Patient) OwnerTenant() uuid.UUID      { return p.TenantID }
func (p *Patient) SetOwnerTenant(id uuid.UUID) { p.TenantID = id }

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Input is the writable part of a patient, shared by create and update.
type Input struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

// apply validates in and copies it onto p.
func (in Input) apply(p *Patient, now time.Time) *apperr.ValidationError {
	v := apperr.NewValidation()
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" {
		v.Add("first_name", "This field is required.")
	}
	if last == "" {
		v.Add("last_name", "This field is required.")
	}
	if len(first) > 100 || len(last) > 100 {
		v.Add("name", "Names are limited to 100 characters.")
	}
	var dob *time.Time
	if in.DateOfBirth != "" {
		d, err := time.Parse(dateLayout, in.DateOfBirth)
		switch {
		case err != nil:
			v.Add("date_of_birth", "Use the YYYY-MM-DD format.")
		case d.After(now):
			v.Add("date_of_birth", "Date of birth cannot be in the future.")
		default:
			dob = &d
		}
	}
	gender := strings.ToLower(strings.TrimSpace(in.Gender))
	if !genders[gender] {
		v.Add("gender", "Must be one of female, male, other, unknown.")
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			v.Add("email", "Enter a valid email address.")
		}
	}
	if !v.Empty() {
		return v
	}

	p.FirstName = first
	p.LastName = last
	p.DateOfBirth = dob
	p.Gender = gender
	p.Email = email
	p.Phone = strings.TrimSpace(in.Phone)
	p.Address = strings.TrimSpace(in.Address)
	return nil
}

// Query narrows a scoped listing.
type Query struct {
	Search string
	Gender string
}
