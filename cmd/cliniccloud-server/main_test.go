package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/config"
	"github.com/cliniccloud/cliniccloud/internal/domain/account"
	"github.com/cliniccloud/cliniccloud/internal/domain/analytics"
	"github.com/cliniccloud/cliniccloud/internal/domain/audit"
	"github.com/cliniccloud/cliniccloud/internal/domain/billing"
	"github.com/cliniccloud/cliniccloud/internal/domain/clinical"
	"github.com/cliniccloud/cliniccloud/internal/domain/documents"
	"github.com/cliniccloud/cliniccloud/internal/domain/invoice"
	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/scheduling"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/blobstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/notification"
	"github.com/cliniccloud/cliniccloud/internal/platform/reporting"
)

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testServer struct {
	e      *echo.Echo
	events *analytics.MemoryRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Env:                "test",
		AuthSigningKey:     strings.Repeat("k", 32),
		AuthIssuer:         "cliniccloud",
		AuthTokenTTL:       time.Hour,
		CORSOrigins:        []string{"*"},
		SiteURL:            "http://localhost:8000",
		TrialSweepInterval: time.Hour,
	}

	patients := patient.NewMemoryRepo()
	appts := scheduling.NewMemoryRepo()
	users := account.NewMemoryRepo()
	events := analytics.NewMemoryRepo()
	r := repos{
		tx: directTx{},
		usage: tenant.UsageFunc(func(ctx context.Context, id uuid.UUID, res plan.Resource) (int, error) {
			switch res {
			case plan.Patients:
				return patients.Count(id), nil
			case plan.Appointments:
				return appts.Count(id), nil
			default:
				return users.CountInTenant(ctx, id)
			}
		}),
		tenants:      tenant.NewMemoryRepo(),
		users:        users,
		audit:        audit.NewMemoryRepo(),
		patients:     patients,
		records:      clinical.NewMemoryRecordRepo(),
		labs:         clinical.NewMemoryLabRepo(),
		referrals:    clinical.NewMemoryReferralRepo(),
		appointments: appts,
		documents:    documents.NewMemoryRepo(),
		invoices:     invoice.NewMemoryRepo(),
		events:       events,
		measures: analytics.MeasureFunc(func(context.Context, uuid.UUID, time.Time) ([]reporting.Value, error) {
			return nil, nil
		}),
	}
	d := deps{blobs: blobstore.NewMemoryStore(), ledger: billing.NopLedger{}, email: &notification.MockEmailSender{}}

	a, err := newApp(cfg, r, d, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return &testServer{e: newRouter(a, nil, nil), events: events}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/patients", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPublicPlanCatalog(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/billing/plans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterLoginAndCreatePatient(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/register", "", account.RegistrationRequest{
		Username:         "drgrey",
		Email:            "grey@clinic.test",
		Password:         "s3cure-pass",
		PasswordConfirm:  "s3cure-pass",
		RegistrationType: account.RegistrationCreate,
		TenantName:       "Grey Family Practice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/login", "", account.LoginRequest{Username: "drgrey", Password: "s3cure-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login account.LoginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatal(err)
	}
	if login.Token == "" || login.User == nil {
		t.Fatalf("login returned no token: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/patients", login.Token, map[string]string{
		"first_name":    "Ada",
		"last_name":     "Lovelace",
		"date_of_birth": "1985-12-10",
		"gender":        "female",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create patient: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	counts, err := s.events.CountByType(context.Background(), login.User.TenantID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if counts[analytics.EventLogin] != 1 || counts[analytics.EventPatientCreate] != 1 {
		t.Errorf("unexpected tracked events: %v", counts)
	}

	// Analytics is not part of the trial.
	rec = s.do(t, http.MethodGet, "/api/v1/analytics/summary", login.Token, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("analytics on trial: expected 402, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/admin/tenants", login.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("operator route: expected 403, got %d", rec.Code)
	}
}

func TestWebhookWithoutSecretIsRejected(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/billing/webhook", "", map[string]string{"id": "evt_1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPriceIDs(t *testing.T) {
	cfg := &config.Config{StripePriceProfessional: "price_pro"}
	ids := priceIDs(cfg)
	if ids[plan.Professional] != "price_pro" {
		t.Errorf("expected professional price, got %v", ids)
	}
	if _, ok := ids[plan.Starter]; ok {
		t.Error("unconfigured prices must be omitted")
	}
}
