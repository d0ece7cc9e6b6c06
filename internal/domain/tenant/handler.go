package tenant

import (
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

// RegisterPublicRoutes mounts the unauthenticated tenant directory.
func (h *Handler) RegisterPublicRoutes(public *echo.Group) {
	public.GET("/tenants/directory", h.Directory)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/tenant", h.Current)

	admin := api.Group("/admin", auth.RequirePlatformAdmin())
	admin.GET("/tenants", h.List)
	admin.POST("/tenants", h.Create)
	admin.GET("/tenants/:id", h.Get)
	admin.PATCH("/tenants/:id", h.SetActive)
}

func (h *Handler) Directory(c echo.Context) error {
	dir, err := h.svc.Directory(c.Request().Context())
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, dir)
}

func (h *Handler) Current(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	st, err := h.svc.Status(ctx, actor)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, _ := tenancy.FromContext(ctx)
	p := pagination.FromContext(c)
	tenants, total, err := h.svc.List(ctx, actor, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tenants, total, p.Limit, p.Offset))
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	actor, _ := tenancy.FromContext(ctx)
	t, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, _ := tenancy.FromContext(ctx)
	t, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

type activationRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *Handler) SetActive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req activationRequest
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return apperr.Respond(h.logger, apperr.Invalid("is_active", "is_active is required"))
	}
	ctx := c.Request().Context()
	actor, _ := tenancy.FromContext(ctx)
	if err := h.svc.SetActive(ctx, actor, id, *req.IsActive); err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
