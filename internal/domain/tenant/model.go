package tenant

import (
	"time"

	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
)

// Tenant is one clinic or organization and the unit of data partitioning.
type Tenant struct {
	ID                    uuid.UUID  `json:"id"`
	Name                  string     `json:"name"`
	Subdomain             string     `json:"subdomain"`
	Plan                  plan.Plan  `json:"plan"`
	Specialization        string     `json:"specialization"`
	TrialStartedAt        *time.Time `json:"trial_started_at,omitempty"`
	TrialEndedAt          *time.Time `json:"trial_ended_at,omitempty"`
	PaymentCustomerID     *string    `json:"payment_customer_id,omitempty"`
	PaymentSubscriptionID *string    `json:"payment_subscription_id,omitempty"`
	IsActive              bool       `json:"is_active"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (t *Tenant) CurrentPlan() plan.Plan { return t.Plan }

func (t *Tenant) TrialEnd() *time.Time { return t.TrialEndedAt }

// StartTrial opens a fresh trial window at now.
func (t *Tenant) StartTrial(now time.Time) {
	start := now.UTC()
	end := start.AddDate(0, 0, plan.TrialDays)
	t.Plan = plan.FreeTrial
	t.TrialStartedAt = &start
	t.TrialEndedAt = &end
}

// Summary is the public directory entry used by the join form.
type Summary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Status is the tenant's own view of its subscription.
type Status struct {
	Tenant             *Tenant        `json:"tenant"`
	InFreeTrial        bool           `json:"in_free_trial"`
	TrialDaysRemaining int            `json:"trial_days_remaining"`
	CanPerformActions  bool           `json:"can_perform_gated_actions"`
	Plan               plan.Details   `json:"plan"`
	Usage              map[string]int `json:"usage,omitempty"`
}

// Specializations lists the accepted clinic specializations.
var Specializations = map[string]string{
	"general_practice": "General Practice",
	"pediatrics":       "Pediatrics",
	"dental":           "Dental",
	"eye":              "Ophthalmology",
	"womens_health":    "Women's Health",
	"dermatology":      "Dermatology",
	"mental_health":    "Mental Health",
	"physiotherapy":    "Physiotherapy",
	"orthopedic":       "Orthopedic Surgery",
	"cardiology":       "Cardiology",
	"ent":              "Ear, Nose & Throat",
	"urology":          "Urology",
	"oncology":         "Oncology",
	"allergy":          "Allergy & Immunology",
	"pain":             "Pain Management",
	"gastroenterology": "Gastroenterology",
	"endocrinology":    "Endocrinology",
	"neurology":        "Neurology",
	"surgical":         "General Surgery",
	"urgent_care":      "Urgent Care",
	"multi_specialty":  "Multi-Specialty",
	"telemedicine":     "Telemedicine",
	"community_health": "Community Health",
	"fertility":        "Fertility Clinic",
	"geriatric":        "Geriatric Care",
}

// DefaultSpecialization is used when registration names none.
const DefaultSpecialization = "general_practice"
