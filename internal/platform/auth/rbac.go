package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// RequireActor rejects requests with no usable actor: non-operators must be
// bound to a tenant.
func RequireActor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := tenancy.Require(tenancy.FromContext(c.Request().Context())); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequireRole admits actors holding one of roles. The admin role and the
// platform capability pass every role check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, _ := tenancy.FromContext(c.Request().Context())
			if a.PlatformAdmin || a.IsAdmin() {
				return next(c)
			}
			for _, r := range roles {
				if a.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequirePlatformAdmin admits platform operators only.
func RequirePlatformAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, _ := tenancy.FromContext(c.Request().Context())
			if !a.PlatformAdmin {
				return echo.NewHTTPError(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
