package analytics

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// routeEvents maps "METHOD route" (API prefix stripped) to an event type.
var routeEvents = map[string]string{
	"POST /patients":                EventPatientCreate,
	"GET /patients/:id":             EventPatientView,
	"PUT /patients/:id":             EventPatientEdit,
	"POST /appointments":            EventAppointmentCreate,
	"PUT /appointments/:id":         EventAppointmentEdit,
	"POST /appointments/:id/status": EventAppointmentEdit,
	"POST /clinical/records":        EventClinicalRecordCreate,
	"GET /clinical/records/:id":     EventClinicalRecordView,
	"POST /clinical/labs":           EventLabResultCreate,
	"GET /clinical/labs/:id":        EventLabResultView,
	"POST /clinical/referrals":      EventReferralCreate,
	"POST /documents":               EventDocumentUpload,
	"POST /invoices/:id/paid":       EventPaymentReceived,
	"GET /invoices/:id/pdf":         EventReportGenerated,
}

// OverrideKey is the echo context key a handler sets to refine the event
// type of its route.
const OverrideKey = "analytics_event"

// EventFor resolves the event type of a matched route, or "" when the
// route is not tracked.
func EventFor(method, path, prefix string) string {
	return routeEvents[method+" "+strings.TrimPrefix(path, prefix)]
}

// Tracker records an event for each successful tracked request. prefix is
// the API group's mount path.
func Tracker(svc *Service, prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil || c.Response().Status >= http.StatusBadRequest {
				return err
			}
			typ := EventFor(c.Request().Method, c.Path(), prefix)
			if typ == "" {
				return nil
			}
			ctx := c.Request().Context()
			actor, ok := tenancy.FromContext(ctx)
			if !ok {
				return nil
			}
			if v, ok := c.Get(OverrideKey).(string); ok && eventTypes[v] {
				typ = v
			}
			svc.Track(ctx, actor, typ, c.Path(), map[string]any{"id": c.Param("id")})
			return nil
		}
	}
}
