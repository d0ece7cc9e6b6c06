package invoice

import (
	"context"
	"net/http"

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
	g := api.Group("/invoices", authz.Require("invoices"))
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/balance/:patient_id", h.Balance)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.GET("/:id/pdf", h.PDF)
	g.POST("/:id/send", h.action((*Service).Send))
	g.POST("/:id/paid", h.action((*Service).MarkPaid))
	g.POST("/:id/cancel", h.action((*Service).Cancel))
}

func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inv, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusCreated, inv)
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
	inv, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q := Query{Status: c.QueryParam("status")}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Respond(h.logger, apperr.Invalid("patient_id", "Must be a valid id."))
		}
		q.PatientID = &id
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, actor, q, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Update(c echo.Context) error {
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
	inv, err := h.svc.Update(ctx, actor, id, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, inv)
}

type transitionFunc func(*Service, context.Context, tenancy.Actor, uuid.UUID) (*Invoice, error)

func (h *Handler) action(fn transitionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		ctx := c.Request().Context()
		actor, err := tenancy.Require(tenancy.FromContext(ctx))
		if err != nil {
			return apperr.Respond(h.logger, err)
		}
		inv, err := fn(h.svc, ctx, actor, id)
		if err != nil {
			return apperr.Respond(h.logger, err)
		}
		return c.JSON(http.StatusOK, inv)
	}
}

func (h *Handler) Balance(c echo.Context) error {
	id, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	b, err := h.svc.Balance(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) PDF(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	inv, out, err := h.svc.PDF(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+inv.Number+`.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", out)
}
