package documents

import (
	"net/http"
	"strconv"

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
	g := api.Group("/documents", authz.Require("documents"))
	g.GET("", h.List)
	g.POST("", h.Upload)
	g.GET("/:id", h.Get)
	g.GET("/:id/content", h.Download)
	g.DELETE("/:id", h.Delete)
}

// Upload accepts a multipart form with a "file" part plus optional title,
// category and patient_id fields.
func (h *Handler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Respond(h.logger, apperr.Invalid("file", "A file is required."))
	}
	in := UploadInput{
		Title:       c.FormValue("title"),
		Category:    c.FormValue("category"),
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
	}
	if raw := c.FormValue("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperr.Respond(h.logger, apperr.Invalid("patient_id", "Must be a valid id."))
		}
		in.PatientID = &id
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	d, err := h.svc.Upload(ctx, actor, in, f)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusCreated, d)
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
	d, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q := Query{Category: c.QueryParam("category"), Search: c.QueryParam("search")}
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

func (h *Handler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	d, rc, err := h.svc.Download(ctx, actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	defer rc.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+d.FileName+`"`)
	resp.Header().Set(echo.HeaderContentLength, strconv.FormatInt(d.SizeBytes, 10))
	resp.Header().Set("X-Content-SHA256", d.SHA256)
	return c.Stream(http.StatusOK, d.ContentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, err := tenancy.Require(tenancy.FromContext(ctx))
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	if err := h.svc.Delete(ctx, actor, id); err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
