package middleware

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies. defaultLimit applies everywhere except
// paths matching a key of overrides, where the longest matching prefix
// wins. Limits are strings such as "1M", "512K" or a bare byte count.
func BodyLimit(defaultLimit string, overrides map[string]string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	prefixes := make([]string, 0, len(overrides))
	limits := make(map[string]int64, len(overrides))
	for p, l := range overrides {
		prefixes = append(prefixes, p)
		limits[p] = parseLimit(l)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	limitFor := func(path string) int64 {
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return limits[p]
			}
		}
		return defaultBytes
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			limit := limitFor(req.URL.Path)

			if req.ContentLength > limit {
				return payloadTooLarge(c, limit)
			}

			// Content-Length may be absent or wrong
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: limit}
			return next(c)
		}
	}
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (n int, err error) {
	if r.exceeded {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	// one byte past the limit detects overflow
	toRead := int64(len(p))
	if toRead > r.remaining+1 {
		toRead = r.remaining + 1
	}

	n, err = r.ReadCloser.Read(p[:toRead])
	r.remaining -= int64(n)

	if r.remaining < 0 {
		r.exceeded = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return n, err
}

func payloadTooLarge(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
		"error":     "payload_too_large",
		"max_bytes": limit,
	})
}

// parseLimit parses "1M", "512K", "10G" or a byte count. Unparseable input
// yields 1 MB.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 1 << 20
	}

	var multiplier int64 = 1
	s = strings.TrimSuffix(s, "B")
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 1 << 20
	}
	return n * multiplier
}
