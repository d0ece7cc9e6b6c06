package account

import (
	"context"
	"errors"
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
	prov   *Provisioner
	svc    *Service
	authn  *Authenticator
	logger zerolog.Logger

	onLogin func(ctx context.Context, actor tenancy.Actor)
}

func NewHandler(prov *Provisioner, svc *Service, authn *Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{prov: prov, svc: svc, authn: authn, logger: logger}
}

// OnLogin registers a callback run after each successful login.
func (h *Handler) OnLogin(fn func(ctx context.Context, actor tenancy.Actor)) {
	h.onLogin = fn
}

// RegisterPublicRoutes mounts sign-up and login.
func (h *Handler) RegisterPublicRoutes(public *echo.Group) {
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/me", h.Me)

	users := api.Group("/users", auth.RequireRole(RoleAdmin))
	users.GET("", h.List)
	users.GET("/pending", h.ListPending)
	users.POST("/:id/approve", h.Approve)
	users.POST("/:id/reject", h.Reject)
}

type registerResponse struct {
	*Registration
	Message string `json:"message"`
}

func (h *Handler) Register(c echo.Context) error {
	var req RegistrationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	reg, err := h.prov.Register(c.Request().Context(), req)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	msg := "Registration successful. You can now log in."
	if reg.PendingApproval {
		msg = "Registration successful. An administrator must approve your account before you can log in."
	}
	if n := trialNotice(reg); n != "" {
		msg += " " + n
	}
	return c.JSON(http.StatusCreated, registerResponse{Registration: reg, Message: msg})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.authn.Login(c.Request().Context(), req)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
	case errors.Is(err, ErrPendingApproval):
		return echo.NewHTTPError(http.StatusForbidden, map[string]string{"error": "pending_approval"})
	case errors.Is(err, ErrTenantInactive):
		return echo.NewHTTPError(http.StatusForbidden, map[string]string{"error": "tenant_inactive"})
	case err != nil:
		return apperr.Respond(h.logger, err)
	}
	if h.onLogin != nil {
		h.onLogin(c.Request().Context(), res.User.Actor())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	u, err := h.svc.Me(ctx, actor)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q := Query{Role: c.QueryParam("role"), Search: c.QueryParam("q")}
	switch c.QueryParam("active") {
	case "true":
		t := true
		q.Active = &t
	case "false":
		f := false
		q.Active = &f
	}
	p := pagination.FromContext(c)
	users, total, err := h.svc.List(ctx, actor, q, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p.Limit, p.Offset))
}

func (h *Handler) ListPending(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	p := pagination.FromContext(c)
	users, total, err := h.svc.ListPending(ctx, actor, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p.Limit, p.Offset))
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	u, err := h.svc.Approve(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, u)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	if err := h.svc.Reject(ctx, actor, id, req.Reason); err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
