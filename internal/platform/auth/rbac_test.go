package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

func serveWith(mw echo.MiddlewareFunc, method string, actor *tenancy.Actor) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	if actor != nil {
		req = req.WithContext(tenancy.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)
	return rec, err
}

func TestRequireRole(t *testing.T) {
	tid := uuid.New()
	tests := []struct {
		name    string
		actor   tenancy.Actor
		allowed bool
	}{
		{"matching role", tenancy.Actor{TenantID: tid, Role: "nurse"}, true},
		{"admin passes", tenancy.Actor{TenantID: tid, Role: "admin"}, true},
		{"platform passes", tenancy.Actor{PlatformAdmin: true}, true},
		{"other role", tenancy.Actor{TenantID: tid, Role: "receptionist"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serveWith(RequireRole("clinician", "nurse"), http.MethodGet, &tt.actor)
			assert.Equal(t, tt.allowed, err == nil)
		})
	}
}

func TestRequireActor(t *testing.T) {
	_, err := serveWith(RequireActor(), http.MethodGet, nil)
	assert.Error(t, err)

	_, err = serveWith(RequireActor(), http.MethodGet, &tenancy.Actor{UserID: uuid.New()})
	assert.Error(t, err, "non-operator without tenant must be refused")

	_, err = serveWith(RequireActor(), http.MethodGet, &tenancy.Actor{TenantID: uuid.New()})
	assert.NoError(t, err)
}

func TestRequirePlatformAdmin(t *testing.T) {
	_, err := serveWith(RequirePlatformAdmin(), http.MethodGet, &tenancy.Actor{TenantID: uuid.New(), Role: "admin"})
	assert.Error(t, err)
	_, err = serveWith(RequirePlatformAdmin(), http.MethodGet, &tenancy.Actor{PlatformAdmin: true})
	assert.NoError(t, err)
}

func TestAuthorizer(t *testing.T) {
	az, err := NewAuthorizer(DefaultPolicy)
	require.NoError(t, err)
	tid := uuid.New()

	ok, err := az.Allowed(tenancy.Actor{TenantID: tid, Role: "admin"}, "analytics", ActRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = az.Allowed(tenancy.Actor{TenantID: tid, Role: "user"}, "patients", ActWrite)
	assert.False(t, ok)
	ok, _ = az.Allowed(tenancy.Actor{TenantID: tid, Role: "user"}, "patients", ActRead)
	assert.True(t, ok)
	ok, _ = az.Allowed(tenancy.Actor{TenantID: tid, Role: "receptionist"}, "clinical", ActRead)
	assert.False(t, ok)
	ok, _ = az.Allowed(tenancy.Actor{PlatformAdmin: true}, "users", "approve")
	assert.True(t, ok)
}

func TestAuthorizer_RequireMapsMethod(t *testing.T) {
	az, err := NewAuthorizer(DefaultPolicy)
	require.NoError(t, err)
	viewer := &tenancy.Actor{TenantID: uuid.New(), Role: "user"}

	_, err = serveWith(az.Require("patients"), http.MethodGet, viewer)
	assert.NoError(t, err)
	_, err = serveWith(az.Require("patients"), http.MethodPost, viewer)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)

	ok, err := CheckPassword(hash, "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsPublicPath(t *testing.T) {
	assert.True(t, IsPublicPath("/billing/webhook"))
	assert.True(t, IsPublicPath("/api/v1/register"))
	assert.False(t, IsPublicPath("/api/v1/patients"))
}
