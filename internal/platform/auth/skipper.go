package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: probes, metrics, the payment provider
// webhook, and the registration and login entry points.
var publicPaths = map[string]bool{
	"/health":                   true,
	"/health/db":                true,
	"/metrics":                  true,
	"/billing/webhook":          true,
	"/api/v1/register":          true,
	"/api/v1/login":             true,
	"/api/v1/tenants/directory": true,
	"/api/v1/billing/plans":     true,
}

// AuthSkipper matches on the route template so parameterized routes resolve
// the same way as their registration.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return publicPaths[strings.TrimSuffix(path, "/")]
}
