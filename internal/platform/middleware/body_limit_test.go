package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10MB", 10 << 20},
		{"512K", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"invalid", 1 << 20},
	}

	for _, tt := range tests {
		if got := parseLimit(tt.input); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func readAllHandler(c echo.Context) error {
	if _, err := io.ReadAll(c.Request().Body); err != nil {
		return err
	}
	return c.String(http.StatusCreated, "created")
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"first_name":"Ada"}`))
	rec := httptest.NewRecorder()

	h := BodyLimit("1K", nil)(readAllHandler)
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(strings.Repeat("x", 2048)))
	rec := httptest.NewRecorder()

	h := BodyLimit("1K", nil)(readAllHandler)
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "payload_too_large") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestBodyLimit_RejectsWithoutContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(strings.Repeat("x", 2048)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()

	h := BodyLimit("1K", nil)(readAllHandler)
	err := h(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 error from reader, got %v", err)
	}
}

func TestBodyLimit_OverrideByPrefix(t *testing.T) {
	e := echo.New()
	mw := BodyLimit("1K", map[string]string{
		"/api/v1/documents": "4K",
		"/api/v1":           "2K",
	})
	h := mw(readAllHandler)

	body := strings.Repeat("x", 3000)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil || rec.Code != http.StatusCreated {
		t.Fatalf("expected documents override to admit 3000 bytes, got %d %v", rec.Code, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(body))
	rec = httptest.NewRecorder()
	_ = h(e.NewContext(req, rec))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 under the shorter prefix, got %d", rec.Code)
	}
}

func TestBodyLimit_SkipsEmptyBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	rec := httptest.NewRecorder()
	h := BodyLimit("1", nil)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
