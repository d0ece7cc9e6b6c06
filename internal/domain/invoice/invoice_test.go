package invoice

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
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
	pro      tenancy.Actor
	trial    tenancy.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	tenants := tenant.NewMemoryRepo()
	pro := &tenant.Tenant{Name: "Pro", Subdomain: "pro", Plan: plan.Professional, IsActive: true}
	require.NoError(t, tenants.Create(ctx, pro))
	trial := &tenant.Tenant{Name: "Trial", Subdomain: "trial", IsActive: true}
	trial.StartTrial(testNow)
	require.NoError(t, tenants.Create(ctx, trial))

	features := tenant.NewService(tenants, nil, zerolog.Nop())
	patients := patient.NewService(patient.NewMemoryRepo(), directTx{}, openGate{}, zerolog.Nop())
	svc := NewService(NewMemoryRepo(), directTx{}, patients, features, zerolog.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return &fixture{
		svc:      svc,
		patients: patients,
		pro:      tenancy.Actor{UserID: uuid.New(), TenantID: pro.ID, Role: "receptionist"},
		trial:    tenancy.Actor{UserID: uuid.New(), TenantID: trial.ID, Role: "receptionist"},
	}
}

func (f *fixture) patient(t *testing.T, actor tenancy.Actor) *patient.Patient {
	t.Helper()
	p, err := f.patients.Create(context.Background(), actor, patient.Input{FirstName: "Pat", LastName: "Ient"})
	require.NoError(t, err)
	return p
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func consult(patientID uuid.UUID) Input {
	return Input{
		PatientID: patientID,
		Tax:       dec("5.50"),
		Items: []ItemInput{
			{ServiceType: "consultation", Description: "Initial consultation", Quantity: 1, UnitPrice: dec("80")},
			{ServiceType: "test", Description: "Blood panel", Quantity: 2, UnitPrice: dec("15.00")},
		},
	}
}

func (f *fixture) draft(t *testing.T, actor tenancy.Actor) *Invoice {
	t.Helper()
	inv, err := f.svc.Create(context.Background(), actor, consult(f.patient(t, actor).ID))
	require.NoError(t, err)
	return inv
}

func TestCreate_ComputesTotals(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(t, f.pro)

	assert.Equal(t, f.pro.TenantID, inv.TenantID)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, "GBP", inv.Currency)
	assert.True(t, strings.HasPrefix(inv.Number, "INV-"))
	assert.Equal(t, "110.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "115.50", inv.Total.StringFixed(2))
	assert.Equal(t, "30.00", inv.Items[1].Total.StringFixed(2))
	assert.Equal(t, testNow.Truncate(24*time.Hour).AddDate(0, 0, 30), inv.DueAt)

	got, err := f.svc.Get(context.Background(), f.pro, inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
}

func TestCreate_UniqueNumbers(t *testing.T) {
	f := newFixture(t)
	a := f.draft(t, f.pro)
	b := f.draft(t, f.pro)
	assert.NotEqual(t, a.Number, b.Number)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, f.pro)

	in := Input{PatientID: p.ID, Currency: "pounds", DueDate: "2020-01-01"}
	_, err := f.svc.Create(context.Background(), f.pro, in)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "items")
	assert.Contains(t, ve.Fields, "currency")
	assert.Contains(t, ve.Fields, "due_date")

	in = consult(p.ID)
	in.Items[0].UnitPrice = dec("-1")
	in.Items[1].ServiceType = "massage"
	_, err = f.svc.Create(context.Background(), f.pro, in)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "items[0].unit_price")
	assert.Contains(t, ve.Fields, "items[1].service_type")

	in = consult(uuid.Nil)
	_, err = f.svc.Create(context.Background(), f.pro, in)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "patient_id")
}

func TestCreate_ForeignPatientDenied(t *testing.T) {
	f := newFixture(t)
	foreign := f.patient(t, f.trial)

	_, err := f.svc.Create(context.Background(), f.pro, consult(foreign.ID))
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
}

func TestIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.draft(t, f.pro)

	_, err := f.svc.Get(ctx, f.trial, inv.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
	_, err = f.svc.MarkPaid(ctx, f.trial, inv.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)

	items, total, err := f.svc.List(ctx, f.trial, Query{}, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, total)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.draft(t, f.pro)

	_, err := f.svc.MarkPaid(ctx, f.pro, inv.ID)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	sent, err := f.svc.Send(ctx, f.pro, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.IssuedAt)

	_, err = f.svc.Update(ctx, f.pro, inv.ID, consult(inv.PatientID))
	require.ErrorAs(t, err, &ve)

	paid, err := f.svc.MarkPaid(ctx, f.pro, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	_, err = f.svc.Cancel(ctx, f.pro, inv.ID)
	require.ErrorAs(t, err, &ve)
}

func TestUpdate_ReplacesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.draft(t, f.pro)

	in := Input{Items: []ItemInput{{Description: "Follow-up", UnitPrice: dec("40")}}}
	got, err := f.svc.Update(ctx, f.pro, inv.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "40.00", got.Total.StringFixed(2))

	stored, err := f.svc.Get(ctx, f.pro, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "other", stored.Items[0].ServiceType)
	assert.Equal(t, inv.Number, stored.Number)

	other := f.patient(t, f.pro)
	in.PatientID = other.ID
	_, err = f.svc.Update(ctx, f.pro, inv.ID, in)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "patient_id")
}

func TestBalanceAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t, f.pro)

	a, err := f.svc.Create(ctx, f.pro, consult(p.ID))
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, f.pro, consult(p.ID))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.pro, consult(p.ID))
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, f.pro, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.pro, b.ID)
	require.NoError(t, err)

	bal, err := f.svc.Balance(ctx, f.pro, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "231.00", bal.Outstanding.StringFixed(2))

	f.svc.SetClock(func() time.Time { return testNow.AddDate(0, 0, 31) })
	n, err := f.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := f.svc.Get(ctx, f.pro, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	_, err = f.svc.MarkPaid(ctx, f.pro, a.ID)
	require.NoError(t, err)
	bal, err = f.svc.Balance(ctx, f.pro, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "115.50", bal.Outstanding.StringFixed(2))

	_, err = f.svc.Balance(ctx, f.trial, p.ID)
	assert.ErrorIs(t, err, tenancy.ErrAccessDenied)
}

func TestPDF_RequiresBillingManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.PDF(ctx, f.trial, f.draft(t, f.trial).ID)
	assert.ErrorIs(t, err, plan.ErrFeatureUnavailable)

	inv, out, err := f.svc.PDF(ctx, f.pro, f.draft(t, f.pro).ID)
	require.NoError(t, err)
	assert.NotNil(t, inv)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestHandler_PDFOnTrialIsPaymentRequired(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, zerolog.Nop())
	inv := f.draft(t, f.trial)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+inv.ID.String()+"/pdf", nil)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.trial))
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())
	err := h.PDF(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, he.Code)
}

func TestHandler_CreateAndSend(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, zerolog.Nop())
	e := echo.New()
	p := f.patient(t, f.pro)

	body := `{"patient_id":"` + p.ID.String() + `","items":[{"description":"Consultation","unit_price":"65.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.pro))
	rec := httptest.NewRecorder()
	require.NoError(t, h.Create(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"draft"`)

	items, _, err := f.svc.List(context.Background(), f.pro, Query{}, 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+items[0].ID.String()+"/send", nil)
	req = req.WithContext(tenancy.WithActor(req.Context(), f.pro))
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(items[0].ID.String())
	require.NoError(t, h.action((*Service).Send)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"sent"`)
}
