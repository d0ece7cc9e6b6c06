package plan

import (
	"github.com/shopspring/decimal"
)

// Plan identifies a subscription tier.
type Plan string

const (
	FreeTrial    Plan = "free_trial"
	Starter      Plan = "starter"
	Professional Plan = "professional"
	Enterprise   Plan = "enterprise"
)

// TrialDays is the length of the free trial granted at tenant creation.
const TrialDays = 14

// Resource names a counted, plan-limited resource.
type Resource string

const (
	Users        Resource = "users"
	Patients     Resource = "patients"
	Appointments Resource = "appointments"
)

// Feature names a tier-gated capability.
type Feature string

const (
	FeatureAnalytics         Feature = "analytics"
	FeatureBillingManagement Feature = "billing_management"
	FeatureAINotes           Feature = "ai_notes"
	FeatureFHIR              Feature = "fhir_integration"
)

// Details describes one tier. A nil limit is unlimited.
type Details struct {
	Plan            Plan            `json:"plan"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	Interval        string          `json:"interval,omitempty"`
	MaxUsers        *int            `json:"max_users"`
	MaxPatients     *int            `json:"max_patients"`
	MaxAppointments *int            `json:"max_appointments"`
	Highlights      []string        `json:"highlights"`
	Features        []Feature       `json:"features"`
}

func limit(n int) *int { return &n }

var catalog = map[Plan]Details{
	FreeTrial: {
		Plan:            FreeTrial,
		Name:            "Free Trial",
		Price:           decimal.RequireFromString("0.00"),
		Currency:        "USD",
		MaxUsers:        limit(2),
		MaxPatients:     limit(5),
		MaxAppointments: limit(50),
		Highlights: []string{
			"Basic patient management",
			"Limited appointments",
			"No advanced features",
		},
	},
	Starter: {
		Plan:            Starter,
		Name:            "Starter",
		Price:           decimal.RequireFromString("29.00"),
		Currency:        "GBP",
		Interval:        "monthly",
		MaxUsers:        limit(5),
		MaxPatients:     limit(100),
		MaxAppointments: limit(500),
		Highlights: []string{
			"Up to 5 users",
			"Up to 100 patients",
			"Appointment scheduling",
			"Lab management",
			"Email support",
		},
	},
	Professional: {
		Plan:            Professional,
		Name:            "Professional",
		Price:           decimal.RequireFromString("99.00"),
		Currency:        "GBP",
		Interval:        "monthly",
		MaxUsers:        limit(20),
		MaxPatients:     limit(500),
		MaxAppointments: limit(2000),
		Highlights: []string{
			"Up to 20 users",
			"Up to 500 patients",
			"Full appointment scheduling",
			"Lab & clinical records",
			"Priority support",
			"AI note-taking",
			"Billing management",
		},
		Features: []Feature{FeatureAnalytics, FeatureBillingManagement, FeatureAINotes},
	},
	Enterprise: {
		Plan:     Enterprise,
		Name:     "Enterprise",
		Price:    decimal.RequireFromString("299.00"),
		Currency: "GBP",
		Interval: "monthly",
		Highlights: []string{
			"Unlimited users",
			"Unlimited patients",
			"All features included",
			"FHIR integration",
			"Custom integrations",
			"Dedicated support",
			"SLA guarantee",
		},
		Features: []Feature{FeatureAnalytics, FeatureBillingManagement, FeatureAINotes, FeatureFHIR},
	},
}

// Lookup returns the details of p.
func Lookup(p Plan) (Details, bool) {
	d, ok := catalog[p]
	return d, ok
}

// All returns every tier in ascending price order.
func All() []Details {
	return []Details{catalog[FreeTrial], catalog[Starter], catalog[Professional], catalog[Enterprise]}
}

// Valid reports whether p is a recognized plan identifier.
func Valid(p Plan) bool {
	_, ok := catalog[p]
	return ok
}

// IsPaid reports whether p is a recognized paid tier.
func IsPaid(p Plan) bool {
	return Valid(p) && p != FreeTrial
}

// Limit returns the ceiling for r under p; nil is unlimited. Unknown plans get
// the free trial ceilings.
func Limit(p Plan, r Resource) *int {
	d, ok := catalog[p]
	if !ok {
		d = catalog[FreeTrial]
	}
	switch r {
	case Users:
		return d.MaxUsers
	case Patients:
		return d.MaxPatients
	case Appointments:
		return d.MaxAppointments
	}
	return nil
}

// PriceIDs maps paid tiers to the payment provider's recurring price ids.
type PriceIDs map[Plan]string

// PlanForPriceID reverses the mapping; false for unknown or empty ids.
func (p PriceIDs) PlanForPriceID(id string) (Plan, bool) {
	if id == "" {
		return "", false
	}
	for pl, pid := range p {
		if pid == id {
			return pl, true
		}
	}
	return "", false
}
