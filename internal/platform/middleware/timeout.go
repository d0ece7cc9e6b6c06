package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on each request context. A handler that
// fails with context.DeadlineExceeded is answered with 504. Paths under any
// of skip (content downloads, exports) keep the caller's context.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skip {
				if strings.HasPrefix(path, p) || (strings.Contains(p, "*") && matchWildcard(path, p)) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(err, context.DeadlineExceeded) && !c.Response().Committed {
				return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "timeout"})
			}
			return err
		}
	}
}

// matchWildcard matches a pattern with a single "*" segment.
func matchWildcard(path, pattern string) bool {
	i := strings.LastIndex(pattern, "*")
	return strings.HasPrefix(path, pattern[:i]) && strings.HasSuffix(path, pattern[i+1:])
}
