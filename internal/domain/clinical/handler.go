package clinical

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

func (h *Handler) RegisterRoutes(api *echo.Group, authz *auth.Authorizer) {
	g := api.Group("/clinical", authz.Require("clinical"))
	g.GET("/records", h.ListRecords)
	g.POST("/records", h.CreateRecord)
	g.GET("/records/:id", h.GetRecord)
	g.PUT("/records/:id", h.UpdateRecord)
	g.DELETE("/records/:id", h.DeleteRecord)

	g.GET("/labs", h.ListLabs)
	g.POST("/labs", h.CreateLab)
	g.GET("/labs/:id", h.GetLab)
	g.PUT("/labs/:id", h.UpdateLab)

	g.GET("/referrals", h.ListReferrals)
	g.POST("/referrals", h.CreateReferral)
	g.GET("/referrals/:id", h.GetReferral)
	g.PUT("/referrals/:id", h.UpdateReferral)
}

func (h *Handler) actor(c echo.Context) (tenancy.Actor, error) {
	return tenancy.Require(tenancy.FromContext(c.Request().Context()))
}

func (h *Handler) query(c echo.Context) (Query, error) {
	q := Query{Status: c.QueryParam("status"), Search: c.QueryParam("search")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return q, apperr.Invalid("patient_id", "must be a UUID")
		}
		q.PatientID = &id
	}
	return q, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func decode(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// -- Clinical records --

func (h *Handler) CreateRecord(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in RecordInput
	if err := decode(c, &in); err != nil {
		return err
	}
	rec, err := h.svc.CreateRecord(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q, err := h.query(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListRecords(c.Request().Context(), actor, q, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in RecordInput
	if err := decode(c, &in); err != nil {
		return err
	}
	rec, err := h.svc.UpdateRecord(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	if err := h.svc.DeleteRecord(c.Request().Context(), actor, id); err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Lab results --

func (h *Handler) CreateLab(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in LabInput
	if err := decode(c, &in); err != nil {
		return err
	}
	lab, err := h.svc.CreateLab(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusCreated, lab)
}

func (h *Handler) GetLab(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	lab, err := h.svc.GetLab(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, lab)
}

func (h *Handler) ListLabs(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q, err := h.query(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListLabs(c.Request().Context(), actor, q, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateLab(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in LabInput
	if err := decode(c, &in); err != nil {
		return err
	}
	lab, err := h.svc.UpdateLab(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, lab)
}

// -- Referrals --

func (h *Handler) CreateReferral(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in ReferralInput
	if err := decode(c, &in); err != nil {
		return err
	}
	ref, err := h.svc.CreateReferral(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusCreated, ref)
}

func (h *Handler) GetReferral(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	ref, err := h.svc.GetReferral(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, ref)
}

func (h *Handler) ListReferrals(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	q, err := h.query(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListReferrals(c.Request().Context(), actor, q, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateReferral(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := h.actor(c)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	var in ReferralInput
	if err := decode(c, &in); err != nil {
		return err
	}
	ref, err := h.svc.UpdateReferral(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.Respond(h.logger, err)
	}
	return c.JSON(http.StatusOK, ref)
}
