package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/auth"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
	"github.com/cliniccloud/cliniccloud/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group, authz *auth.Authorizer) {
	g := api.Group("/appointments", authz.Require("appointments"))
	g.GET("", h.List)
	g.POST("", h.Book)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Reschedule)
	g.POST("/:id/status", h.SetStatus)
}

func (h *Handler) Book(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Book(ctx, actor, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	a, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, a)
}

func parseQuery(c echo.Context) (Query, error) {
	q := Query{Status: c.QueryParam("status")}
	v := apperr.NewValidation()
	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{{"patient_id", &q.PatientID}, {"clinician_id", &q.ClinicianID}} {
		if s := c.QueryParam(p.name); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				v.Add(p.name, "must be a UUID")
				continue
			}
			*p.dst = &id
		}
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		if s := c.QueryParam(p.name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				v.Add(p.name, "must be an RFC 3339 timestamp")
				continue
			}
			*p.dst = &t
		}
	}
	return q, v.OrNil()
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q, err := parseQuery(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, actor, q, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Reschedule(ctx, actor, id, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return apperr.Respond(h.logger, apperr.Invalid("status", "status is required"))
	}
	a, err := h.svc.SetStatus(ctx, actor, id, req.Status)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	if a.Status == StatusCancelled {
		// read by the analytics tracker
		c.Set("analytics_event", "appointment_cancel")
	}
	return c.JSON(http.StatusOK, a)
}
