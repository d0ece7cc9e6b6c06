package analytics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/platform/apperr"
	"github.com/cliniccloud/cliniccloud/internal/platform/auth"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
	"github.com/cliniccloud/cliniccloud/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group, authz *auth.Authorizer) {
	g := api.Group("/analytics", authz.Require("analytics"))
	g.GET("/summary", h.Summary)
	g.GET("/events", h.Events)
	g.GET("/export", h.Export)
}

func days(c echo.Context) int {
	n, _ := strconv.Atoi(c.QueryParam("days"))
	return n
}

func (h *Handler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	sum, err := h.svc.Summary(ctx, actor, days(c))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Events(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q := Query{Type: c.QueryParam("event_type")}
	if raw := c.QueryParam("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		q.UserID = &id
	}
	if n := days(c); n > 0 {
		since := time.Now().UTC().AddDate(0, 0, -clampDays(n))
		q.Since = &since
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Events(ctx, actor, q, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Export(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var buf bytes.Buffer
	if err := h.svc.Export(ctx, actor, days(c), &buf); err != nil {
		return apperr.Respond(h.logger, err)
	}
	name := fmt.Sprintf("analytics-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
