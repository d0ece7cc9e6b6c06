package clinical

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type openGate struct{}

func (openGate) Gate(context.Context, uuid.UUID, plan.Resource) error { return nil }

var testNow = time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	patients *patient.Service
	acme     tenancy.Actor
	beta     tenancy.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	patients := patient.NewService(patient.NewMemoryRepo(), directTx{}, openGate{}, zerolog.Nop())
	svc := NewService(NewMemoryRecordRepo(), NewMemoryLabRepo(), NewMemoryReferralRepo(), patients, zerolog.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return &fixture{
		svc:      svc,
		patients: patients,
		acme:     tenancy.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: "clinician"},
		beta:     tenancy.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: "clinician"},
	}
}

func (f *fixture) patient(t *testing.T, actor tenancy.Actor) *patient.Patient {
	t.Helper()
	p, err := f.patients.Create(context.Background(), actor, patient.Input{FirstName: "Pat", LastName: "Ient"})
	require.NoError(t, err)
	return p
}

func TestCreateRecord_BindsTenantAndAuthor(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, f.acme)

	rec, err := f.svc.CreateRecord(context.Background(), f.acme, RecordInput{PatientID: p.ID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	assert.Equal(t, f.acme.TenantID, rec.TenantID)
	assert.Equal(t, p.ID, rec.PatientID)
	require.NotNil(t, rec.AuthorID)
	assert.Equal(t, f.acme.UserID, *rec.AuthorID)
	assert.Equal(t, testNow, rec.VisitDate)
}

func TestCreate_ForeignPatientIsDenied(t *testing.T) {
	f := newFixture(t)
	foreign := f.patient(t, f.beta)
	ctx := context.Background()

	_, err := f.svc.CreateRecord(ctx, f.acme, RecordInput{PatientID: foreign.ID, Notes: "x"})
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	_, err = f.svc.CreateLab(ctx, f.acme, LabInput{PatientID: foreign.ID, TestName: "CBC"})
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	_, err = f.svc.CreateReferral(ctx, f.acme, ReferralInput{PatientID: foreign.ID, ReferredTo: "Cardiology"})
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)

	_, err = f.svc.CreateLab(ctx, f.acme, LabInput{TestName: "CBC"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "patient_id")
}

func TestCreate_PlatformAdminUsesPatientTenant(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, f.beta)

	lab, err := f.svc.CreateLab(context.Background(), tenancy.Actor{PlatformAdmin: true}, LabInput{PatientID: p.ID, TestName: "HbA1c"})
	require.NoError(t, err)
	assert.Equal(t, f.beta.TenantID, lab.TenantID)
	assert.Equal(t, "pending", lab.Status)
}

func TestRecords_IsolationAndPatientFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.patient(t, f.acme)
	p2 := f.patient(t, f.acme)
	other := f.patient(t, f.beta)

	for _, in := range []RecordInput{
		{PatientID: p1.ID, Notes: "first"},
		{PatientID: p1.ID, Notes: "second"},
		{PatientID: p2.ID, Notes: "third"},
	} {
		_, err := f.svc.CreateRecord(ctx, f.acme, in)
		require.NoError(t, err)
	}
	foreign, err := f.svc.CreateRecord(ctx, f.beta, RecordInput{PatientID: other.ID, Notes: "beta"})
	require.NoError(t, err)

	_, total, err := f.svc.ListRecords(ctx, f.acme, Query{}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, total, err = f.svc.ListRecords(ctx, f.acme, Query{PatientID: &p1.ID}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, _, err = f.svc.ListRecords(ctx, f.acme, Query{PatientID: &other.ID}, 20, 0)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)

	_, err = f.svc.GetRecord(ctx, f.acme, foreign.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	_, err = f.svc.UpdateRecord(ctx, f.acme, foreign.ID, RecordInput{Notes: "overwrite"})
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	assert.ErrorIs(t, f.svc.DeleteRecord(ctx, f.acme, foreign.ID), tenancy.ErrAccessDenied)

	still, err := f.svc.GetRecord(ctx, f.beta, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, "beta", still.Notes)
}

func TestUpdateLab_CompletionStampsReportTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t, f.acme)
	lab, err := f.svc.CreateLab(ctx, f.acme, LabInput{PatientID: p.ID, TestName: "Glucose"})
	require.NoError(t, err)
	assert.Nil(t, lab.ReportedAt)

	_, err = f.svc.UpdateLab(ctx, f.acme, lab.ID, LabInput{TestName: "Glucose", Status: "completed"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "result_value")

	done, err := f.svc.UpdateLab(ctx, f.acme, lab.ID, LabInput{TestName: "Glucose", Status: "completed", ResultValue: "5.4", Unit: "mmol/L"})
	require.NoError(t, err)
	require.NotNil(t, done.ReportedAt)
	assert.Equal(t, testNow, *done.ReportedAt)
	assert.Equal(t, p.ID, done.PatientID)
}

func TestReferral_StatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t, f.acme)

	_, err := f.svc.CreateReferral(ctx, f.acme, ReferralInput{PatientID: p.ID, ReferredTo: "Ortho", Status: "completed"})
	require.Error(t, err)

	ref, err := f.svc.CreateReferral(ctx, f.acme, ReferralInput{PatientID: p.ID, ReferredTo: "Ortho", Urgency: "urgent"})
	require.NoError(t, err)
	assert.Equal(t, "pending", ref.Status)

	_, err = f.svc.UpdateReferral(ctx, f.acme, ref.ID, ReferralInput{ReferredTo: "Ortho", Urgency: "urgent", Status: "completed"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "status")

	ref, err = f.svc.UpdateReferral(ctx, f.acme, ref.ID, ReferralInput{ReferredTo: "Ortho", Urgency: "urgent", Status: "accepted"})
	require.NoError(t, err)
	ref, err = f.svc.UpdateReferral(ctx, f.acme, ref.ID, ReferralInput{ReferredTo: "Ortho", Urgency: "urgent", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, "completed", ref.Status)

	_, err = f.svc.UpdateReferral(ctx, f.acme, ref.ID, ReferralInput{ReferredTo: "Ortho", Status: "pending"})
	assert.Error(t, err)
}

func TestHandler_CreateRecordForForeignPatient(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, zerolog.Nop())
	foreign := f.patient(t, f.beta)

	body := `{"patient_id":"` + foreign.ID.String() + `","notes":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/clinical/records", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.acme))
	err := h.CreateRecord(echo.New().NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Code)
}

func TestHandler_ListLabsBadPatientID(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clinical/labs?patient_id=nope", nil)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.acme))
	err := h.ListLabs(echo.New().NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
}
