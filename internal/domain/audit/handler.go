package audit

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/audit", h.List, auth.RequireRole("admin"))
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}

	q := Query{Action: c.QueryParam("action"), Resource: c.QueryParam("resource")}
	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Respond(h.logger, apperr.Invalid("user_id", "must be a UUID"))
		}
		q.UserID = &id
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return apperr.Respond(h.logger, apperr.Invalid("since", "must be an RFC 3339 timestamp"))
		}
		q.Since = &t
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, actor, q, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}
