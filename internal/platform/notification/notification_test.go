package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{"name": "Alice", "code": "1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	for _, id := range []string{
		TplTrialExpiryWeekly,
		TplTrialExpiryDaily,
		TplUserPendingApproval,
		TplUserApproved,
		TplUserRejected,
	} {
		if _, _, err := eng.Render(id, nil); err != nil {
			t.Errorf("built-in template %q: %v", id, err)
		}
	}
}

func TestTemplateEngine_TrialExpiry(t *testing.T) {
	eng := NewTemplateEngine()
	subject, body, err := eng.Render(TplTrialExpiryDaily, map[string]string{
		"username":    "drsmith",
		"tenant_name": "Riverside Dental",
		"days_left":   "3",
		"upgrade_url": "https://app.example.com/billing",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(subject, "3 day(s)") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Riverside Dental") || strings.Contains(body, "{{") {
		t.Errorf("body not fully rendered: %q", body)
	}
}

// ---------------------------------------------------------------------------
// Sender Tests
// ---------------------------------------------------------------------------

func TestHTTPEmailSender_PostsMessage(t *testing.T) {
	var got sendEmailRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("path = %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPEmailSender(HTTPEmailConfig{BaseURL: srv.URL, APIKey: "k123", From: "noreply@cliniccloud.test"})
	if err := s.SendEmail(context.Background(), "admin@clinic.test", "Hi", "Body"); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if auth != "Bearer k123" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.From != "noreply@cliniccloud.test" || got.To != "admin@clinic.test" || got.Subject != "Hi" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestHTTPEmailSender_ProviderError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := NewHTTPEmailSender(HTTPEmailConfig{BaseURL: srv.URL})
	err := s.SendEmail(context.Background(), "x", "s", "b")
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected 422 error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Manager Tests
// ---------------------------------------------------------------------------

func TestManager_SendFromTemplate_AllRecipients(t *testing.T) {
	mock := &MockEmailSender{}
	mgr := NewManager(mock, nil, zerolog.Nop())

	err := mgr.SendFromTemplate(context.Background(), TplUserPendingApproval,
		map[string]string{"new_username": "nurse1", "tenant_name": "Acme"},
		"a@acme.test", "", "b@acme.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls (empty recipient skipped), got %d", len(calls))
	}
	if calls[0].Subject != "[ClinicCloud] New User Pending Approval: nurse1" {
		t.Errorf("subject = %q", calls[0].Subject)
	}
	if mgr.Stats()["sent"] != 2 {
		t.Errorf("stats = %v", mgr.Stats())
	}
}

func TestManager_FailureRecorded(t *testing.T) {
	mock := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	mgr := NewManager(mock, nil, zerolog.Nop())

	err := mgr.SendFromTemplate(context.Background(), TplUserApproved, nil, "u@x.test")
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected joined send error, got %v", err)
	}
	recent := mgr.Recent(10)
	if len(recent) != 1 || recent[0].Status != "failed" {
		t.Fatalf("unexpected history: %+v", recent)
	}
}

func TestManager_UnknownTemplate(t *testing.T) {
	mock := &MockEmailSender{}
	mgr := NewManager(mock, nil, zerolog.Nop())
	if err := mgr.SendFromTemplate(context.Background(), "nope", nil, "u@x.test"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.Calls()) != 0 {
		t.Error("nothing should be sent")
	}
}

// ---------------------------------------------------------------------------
// Handler Tests
// ---------------------------------------------------------------------------

func TestHandler_Recent(t *testing.T) {
	mgr := NewManager(&MockEmailSender{}, nil, zerolog.Nop())
	for i := 0; i < 3; i++ {
		_ = mgr.Send(context.Background(), &Notification{Recipient: "r@x.test", Subject: "s", Body: "b"})
	}
	h := NewHandler(mgr)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/notifications?limit=2", nil)
	rec := httptest.NewRecorder()
	if err := h.HandleRecent(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	var out []Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Errorf("expected 2, got %d", len(out))
	}

	req = httptest.NewRequest(http.MethodGet, "/notifications?limit=0", nil)
	err := h.HandleRecent(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
