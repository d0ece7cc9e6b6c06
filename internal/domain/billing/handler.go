package billing

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/metrics"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

type Handler struct {
	proc    *Processor
	svc     *Service
	tenants *tenant.Service
	logger  zerolog.Logger
}

func NewHandler(proc *Processor, svc *Service, tenants *tenant.Service, logger zerolog.Logger) *Handler {
	return &Handler{proc: proc, svc: svc, tenants: tenants, logger: logger}
}

// RegisterWebhook mounts the unauthenticated provider callback.
func (h *Handler) RegisterWebhook(e *echo.Echo) {
	e.POST("/billing/webhook", h.Webhook)
}

// RegisterPublicRoutes mounts the plan catalog.
func (h *Handler) RegisterPublicRoutes(public *echo.Group) {
	public.GET("/billing/plans", h.Plans)
}

// RegisterRoutes mounts the tenant billing surface. manage guards the routes
// that change what the tenant pays.
func (h *Handler) RegisterRoutes(api *echo.Group, manage echo.MiddlewareFunc) {
	api.GET("/billing/status", h.Status)
	api.POST("/billing/checkout", h.Checkout, manage)
	api.POST("/billing/portal", h.Portal, manage)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

// Webhook verifies and applies one provider event. Only storage faults return
// 5xx so the provider redelivers; malformed or unknown events are acknowledged.
func (h *Handler) Webhook(c echo.Context) error {
	start := time.Now()
	eventType := "unknown"
	outcome := "error"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, outcome).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, webhookBodyLimit)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		outcome = "bad_request"
		return c.JSON(http.StatusBadRequest, webhookResponse{Error: "failed to read request body"})
	}

	res, err := h.proc.Handle(req.Context(), payload, req.Header.Get("Stripe-Signature"))
	if res.EventType != "" {
		eventType = res.EventType
	}
	switch {
	case errors.Is(err, ErrWebhookNotConfigured):
		outcome = "not_configured"
		h.logger.Error().Msg("billing webhook received but signing secret is not configured")
		return c.JSON(http.StatusBadRequest, webhookResponse{Error: "webhook not configured"})
	case errors.Is(err, ErrUnverifiedEvent):
		outcome = "unverified"
		h.logger.Warn().Err(err).Msg("billing webhook rejected")
		return c.JSON(http.StatusBadRequest, webhookResponse{Error: "invalid signature"})
	case err != nil:
		h.logger.Error().Err(err).Str("event_id", res.EventID).Str("type", res.EventType).Msg("billing webhook processing failed")
		return c.JSON(http.StatusInternalServerError, webhookResponse{Error: "processing failed"})
	}

	outcome = string(res.Outcome)
	return c.JSON(http.StatusOK, webhookResponse{Received: true})
}

func (h *Handler) Plans(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Plans())
}

func (h *Handler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	st, err := h.tenants.Status(ctx, actor)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, st)
}

type checkoutRequest struct {
	Plan plan.Plan `json:"plan"`
}

type redirectResponse struct {
	URL string `json:"url"`
}

func (h *Handler) Checkout(c echo.Context) error {
	var in checkoutRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	actor, _ := tenancy.FromContext(ctx)
	url, err := h.svc.StartCheckout(ctx, actor, in.Plan)
	if err != nil {
		return h.respond(err)
	}
	return c.JSON(http.StatusOK, redirectResponse{URL: url})
}

func (h *Handler) Portal(c echo.Context) error {
	ctx := c.Request().Context()
	actor, _ := tenancy.FromContext(ctx)
	url, err := h.svc.OpenPortal(ctx, actor)
	if err != nil {
		return h.respond(err)
	}
	return c.JSON(http.StatusOK, redirectResponse{URL: url})
}

func (h *Handler) respond(err error) error {
	if errors.Is(err, ErrProviderNotConfigured) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, map[string]string{
			"error":   "payments_unavailable",
			"message": "Payment is not configured. Please contact support.",
		})
	}
	return apperr.Respond(h.logger, err)
}
