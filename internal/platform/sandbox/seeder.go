// Package sandbox generates reproducible demo data for a tenant: patients,
// upcoming appointments, clinical records, lab results and referrals. Every
// row is created through the domain services, so tenant assignment and plan
// limits apply exactly as they do for API callers.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/clinical"
	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/scheduling"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	Patients               int
	AppointmentsPerPatient int
	RecordsPerPatient      int
	LabsPerPatient         int
	ReferralRate           float64 // share of patients given one referral
	Seed                   int64
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Patients:               25,
		AppointmentsPerPatient: 2,
		RecordsPerPatient:      2,
		LabsPerPatient:         1,
		ReferralRate:           0.2,
	}
}

type SeedResult struct {
	Patients     int `json:"patients"`
	Appointments int `json:"appointments"`
	Records      int `json:"records"`
	Labs         int `json:"labs"`
	Referrals    int `json:"referrals"`
}

type Patients interface {
	Create(ctx context.Context, actor tenancy.Actor, in patient.Input) (*patient.Patient, error)
}

type Appointments interface {
	Book(ctx context.Context, actor tenancy.Actor, in scheduling.Input) (*scheduling.Appointment, error)
}

type Clinical interface {
	CreateRecord(ctx context.Context, actor tenancy.Actor, in clinical.RecordInput) (*clinical.ClinicalRecord, error)
	CreateLab(ctx context.Context, actor tenancy.Actor, in clinical.LabInput) (*clinical.LabResult, error)
	CreateReferral(ctx context.Context, actor tenancy.Actor, in clinical.ReferralInput) (*clinical.Referral, error)
}

var (
	firstNamesMale = []string{
		"James", "Robert", "John", "Michael", "David", "William", "Richard",
		"Joseph", "Thomas", "Daniel", "Matthew", "Andrew", "Samuel", "Oliver",
	}
	firstNamesFemale = []string{
		"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Susan",
		"Sarah", "Emily", "Laura", "Amy", "Anna", "Emma", "Rachel", "Helen",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Wilson", "Taylor", "Moore", "Clark", "Walker", "Hall",
	}
	streets = []string{
		"12 High Street", "4 Station Road", "77 Church Lane", "9 Park Avenue",
		"31 Mill Road", "158 Victoria Street", "2 Green Lane",
	}

	diagnoses = []struct{ code, display, treatment string }{
		{"E11.9", "Type 2 diabetes mellitus without complications", "Metformin 500 mg twice daily"},
		{"I10", "Essential (primary) hypertension", "Lisinopril 10 mg daily"},
		{"J45.909", "Asthma, uncomplicated", "Salbutamol inhaler as needed"},
		{"J06.9", "Acute upper respiratory infection", "Rest and fluids"},
		{"M54.5", "Low back pain", "Physiotherapy referral, ibuprofen"},
		{"K21.0", "Gastro-oesophageal reflux disease", "Omeprazole 20 mg daily"},
		{"G43.909", "Migraine", "Sumatriptan 50 mg as needed"},
		{"E55.9", "Vitamin D deficiency", "Colecalciferol 1000 IU daily"},
	}

	labTests = []struct {
		name, unit string
		low, high  float64
	}{
		{"Haemoglobin", "g/dL", 10, 18},
		{"HbA1c", "%", 4.0, 12.0},
		{"Total cholesterol", "mmol/L", 3.0, 8.0},
		{"Creatinine", "umol/L", 45, 150},
		{"TSH", "mU/L", 0.3, 6.0},
		{"Vitamin D", "nmol/L", 20, 120},
	}

	referralTargets = []struct{ to, specialty string }{
		{"City Cardiology Clinic", "cardiology"},
		{"Riverside Physiotherapy", "physiotherapy"},
		{"Northside Dermatology", "dermatology"},
		{"Central Endocrine Unit", "endocrinology"},
	}

	visitReasons = []string{
		"Annual review", "Follow-up", "Blood pressure check", "Medication review",
		"New symptoms", "Test results discussion",
	}
)

// generator draws deterministic values from one seeded source.
type generator struct {
	rng *rand.Rand
	now time.Time
}

func (g *generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *generator) patient() patient.Input {
	first, gender := g.pick(firstNamesFemale), "female"
	if g.rng.Intn(2) == 0 {
		first, gender = g.pick(firstNamesMale), "male"
	}
	last := g.pick(lastNames)
	dob := time.Date(1940+g.rng.Intn(70), time.Month(1+g.rng.Intn(12)), 1+g.rng.Intn(28), 0, 0, 0, 0, time.UTC)
	return patient.Input{
		FirstName:   first,
		LastName:    last,
		DateOfBirth: dob.Format("2006-01-02"),
		Gender:      gender,
		Email:       fmt.Sprintf("%s.%s.%d@example.com", strings.ToLower(first), strings.ToLower(last), g.rng.Intn(1000)),
		Phone:       fmt.Sprintf("07%03d %06d", g.rng.Intn(1000), g.rng.Intn(1000000)),
		Address:     g.pick(streets),
	}
}

// slot returns a weekday-agnostic slot between 09:00 and 16:30 in the next
// thirty days.
func (g *generator) slot() time.Time {
	day := g.now.Truncate(24*time.Hour).AddDate(0, 0, 1+g.rng.Intn(30))
	return day.Add(time.Duration(9*60+30*g.rng.Intn(16)) * time.Minute)
}

func (g *generator) pastDay(maxDays int) time.Time {
	return g.now.Truncate(24*time.Hour).AddDate(0, 0, -1-g.rng.Intn(maxDays))
}

// Seeder writes generated data through the domain services.
type Seeder struct {
	patients     Patients
	appointments Appointments
	clinical     Clinical
	logger       zerolog.Logger
	now          func() time.Time
}

func NewSeeder(patients Patients, appointments Appointments, clin Clinical, logger zerolog.Logger) *Seeder {
	return &Seeder{patients: patients, appointments: appointments, clinical: clin, logger: logger, now: time.Now}
}

func (s *Seeder) SetClock(now func() time.Time) {
	s.now = now
}

// Run seeds data for the actor's tenant. It stops at the first failure,
// typically a plan limit, and reports what was created before it.
func (s *Seeder) Run(ctx context.Context, actor tenancy.Actor, cfg SeedConfig) (*SeedResult, error) {
	if !actor.HasTenant() {
		return nil, tenancy.ErrAccessDenied
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	g := &generator{rng: rand.New(rand.NewSource(seed)), now: s.now().UTC()}
	res := &SeedResult{}

	for i := 0; i < cfg.Patients; i++ {
		p, err := s.patients.Create(ctx, actor, g.patient())
		if err != nil {
			return res, fmt.Errorf("seed patient %d: %w", i+1, err)
		}
		res.Patients++

		for j := 0; j < cfg.AppointmentsPerPatient; j++ {
			if _, err := s.appointments.Book(ctx, actor, scheduling.Input{
				PatientID:   p.ID,
				ScheduledAt: g.slot(),
				DurationMin: []int{15, 20, 30}[g.rng.Intn(3)],
				Reason:      g.pick(visitReasons),
			}); err != nil {
				return res, fmt.Errorf("seed appointment: %w", err)
			}
			res.Appointments++
		}

		for j := 0; j < cfg.RecordsPerPatient; j++ {
			d := diagnoses[g.rng.Intn(len(diagnoses))]
			visit := g.pastDay(365)
			if _, err := s.clinical.CreateRecord(ctx, actor, clinical.RecordInput{
				PatientID: p.ID,
				VisitDate: &visit,
				Diagnosis: d.code + " " + d.display,
				Notes:     "Seeded demo record.",
				Treatment: d.treatment,
			}); err != nil {
				return res, fmt.Errorf("seed clinical record: %w", err)
			}
			res.Records++
		}

		for j := 0; j < cfg.LabsPerPatient; j++ {
			t := labTests[g.rng.Intn(len(labTests))]
			collected := g.pastDay(90)
			value := t.low + g.rng.Float64()*(t.high-t.low)
			if _, err := s.clinical.CreateLab(ctx, actor, clinical.LabInput{
				PatientID:      p.ID,
				TestName:       t.name,
				ResultValue:    fmt.Sprintf("%.1f", value),
				Unit:           t.unit,
				ReferenceRange: fmt.Sprintf("%.1f-%.1f", t.low, t.high),
				Status:         "completed",
				CollectedAt:    &collected,
			}); err != nil {
				return res, fmt.Errorf("seed lab result: %w", err)
			}
			res.Labs++
		}

		if g.rng.Float64() < cfg.ReferralRate {
			r := referralTargets[g.rng.Intn(len(referralTargets))]
			if _, err := s.clinical.CreateReferral(ctx, actor, clinical.ReferralInput{
				PatientID:  p.ID,
				ReferredTo: r.to,
				Specialty:  r.specialty,
				Reason:     "Specialist opinion requested.",
				Urgency:    "routine",
			}); err != nil {
				return res, fmt.Errorf("seed referral: %w", err)
			}
			res.Referrals++
		}
	}

	s.logger.Info().
		Str("tenant_id", actor.TenantID.String()).
		Int("patients", res.Patients).
		Int("appointments", res.Appointments).
		Int("records", res.Records).
		Int("labs", res.Labs).
		Int("referrals", res.Referrals).
		Msg("demo data seeded")
	return res, nil
}
