package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// AuditEntry describes one mutating API call.
type AuditEntry struct {
	Actor      tenancy.Actor
	Action     string // create, update, delete
	Resource   string
	ResourceID string
	Method     string
	Path       string
	Route      string
	IPAddress  string
	UserAgent  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries. The audit domain's Recorder is
// adapted to it in the server wiring.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records successful mutating calls under prefix. Reads are not
// recorded. Calls without a tenant-bound actor are logged only.
func Audit(logger zerolog.Logger, prefix string, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := httpMethodToAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, prefix+"/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			if err != nil || status >= http.StatusBadRequest {
				return err
			}

			ctx := req.Context()
			actor, _ := tenancy.FromContext(ctx)
			rid, _ := c.Get("request_id").(string)
			entry := AuditEntry{
				Actor:      actor,
				Action:     action,
				Resource:   extractResource(c.Path(), prefix),
				ResourceID: extractResourceID(c),
				Method:     req.Method,
				Path:       req.URL.Path,
				Route:      c.Path(),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				RequestID:  rid,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}

			if recorder != nil && actor.HasTenant() {
				if recErr := recorder.RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("route", entry.Route).
				Int("status", entry.StatusCode)
			if actor.UserID != uuid.Nil {
				evt = evt.Str("user_id", actor.UserID.String())
			}
			if actor.HasTenant() {
				evt = evt.Str("tenant_id", actor.TenantID.String())
			}
			evt.Msg("api_mutation")
			return nil
		}
	}
}

// httpMethodToAction maps mutating methods to audit actions; reads map to "".
func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// extractResource names the resource from the matched route:
//   - /api/v1/patients/:id        -> patients
//   - /api/v1/clinical/labs       -> clinical/labs
//   - /api/v1/invoices/:id/paid   -> invoices/paid
func extractResource(route, prefix string) string {
	var parts []string
	for _, seg := range strings.Split(strings.TrimPrefix(route, prefix), "/") {
		if seg == "" || strings.HasPrefix(seg, ":") {
			continue
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "/")
}

func extractResourceID(c echo.Context) string {
	if id := c.Param("id"); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return ""
}
