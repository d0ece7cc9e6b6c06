// Package apperr holds the error types shared across domains and their
// mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// UpgradeURL is where plan denials point the caller.
const UpgradeURL = "/api/v1/billing/plans"

// ValidationError carries per-field reasons for rejected input.
type ValidationError struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidation returns an empty ValidationError ready for Add.
func NewValidation() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a reason against field.
func (v *ValidationError) Add(field, reason string) {
	v.Fields[field] = append(v.Fields[field], reason)
}

// Empty reports whether no field has failed.
func (v *ValidationError) Empty() bool {
	return len(v.Fields) == 0
}

// OrNil returns v as an error only if a field has failed.
func (v *ValidationError) OrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Invalid is a one-field ValidationError.
func Invalid(field, reason string) *ValidationError {
	v := NewValidation()
	v.Add(field, reason)
	return v
}

// HTTP maps a domain error onto an echo HTTP error. Unknown errors become a
// bare 500; the caller is expected to have logged the cause.
func HTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "validation_failed",
			"fields": ve.Fields,
		})
	}

	var le *plan.LimitError
	switch {
	case errors.Is(err, tenancy.ErrAccessDenied), errors.Is(err, tenancy.ErrNotFound):
		return echo.NewHTTPError(http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, plan.ErrTrialExpired):
		return echo.NewHTTPError(http.StatusPaymentRequired, map[string]string{
			"error":       "trial_expired",
			"message":     "Free trial expired. Please upgrade your plan to continue.",
			"upgrade_url": UpgradeURL,
		})
	case errors.As(err, &le):
		return echo.NewHTTPError(http.StatusPaymentRequired, map[string]interface{}{
			"error":       "limit_reached",
			"resource":    le.Resource,
			"limit":       le.Limit,
			"upgrade_url": UpgradeURL,
		})
	case errors.Is(err, plan.ErrFeatureUnavailable):
		return echo.NewHTTPError(http.StatusPaymentRequired, map[string]string{
			"error":       "feature_unavailable",
			"upgrade_url": UpgradeURL,
		})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// Respond maps err for a handler to return, logging server faults at error
// level and isolation denials at warn.
func Respond(logger zerolog.Logger, err error) error {
	he := HTTP(err)
	switch he.Code {
	case http.StatusInternalServerError:
		logger.Error().Err(err).Msg("request failed")
	case http.StatusForbidden:
		metrics.AccessDeniedTotal.Inc()
		logger.Warn().Msg("access denied")
	}
	return he
}
