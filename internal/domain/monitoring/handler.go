package monitoring

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/pkg/pagination"
)

// Access decides whether a session may read a patient's clinical data.
type Access interface {
	Authorize(ctx context.Context, s auth.Session, patientID uuid.UUID) error
}

type Handler struct {
	svc    *Service
	access Access
}

func NewHandler(svc *Service, access Access) *Handler {
	return &Handler{svc: svc, access: access}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/vitals", h.ListVitals)
	api.GET("/alerts", h.ListAlerts)

	staff := api.Group("", auth.RequireStaff())
	staff.POST("/vitals", h.RecordVital)
	staff.GET("/alerts/summary", h.Summary)
	staff.POST("/alerts/:id/acknowledge", h.Acknowledge)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownPatient), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, patient.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) RecordVital(c echo.Context) error {
	var v Vital
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if v.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	res, err := h.svc.Record(c.Request().Context(), v)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListVitals(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ctx := c.Request().Context()
	if err := h.access.Authorize(ctx, s, id); err != nil {
		return httpError(err)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	vitals, err := h.svc.Vitals(ctx, id, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if vitals == nil {
		vitals = []Vital{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(vitals, len(vitals), len(vitals), 0))
}

func alertFilter(c echo.Context) (AlertFilter, error) {
	var f AlertFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("unacknowledged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid unacknowledged")
		}
		f.Unacknowledged = b
	}
	if v := c.QueryParam("severity"); v != "" {
		f.Severity = Severity(v)
		if !f.Severity.Valid() {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid severity")
		}
	}
	return f, nil
}

// ListAlerts serves staff boards and, scoped to their own record, patients.
func (h *Handler) ListAlerts(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	f, err := alertFilter(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if !s.Role.IsStaff() {
		if f.PatientID == nil {
			return echo.NewHTTPError(http.StatusForbidden, "patient_id is required")
		}
		if err := h.access.Authorize(ctx, s, *f.PatientID); err != nil {
			return httpError(err)
		}
	}
	pg := pagination.FromContext(c)
	alerts, total, err := h.svc.Alerts(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(alerts, total, pg.Limit, pg.Offset))
}

func (h *Handler) Summary(c echo.Context) error {
	f, err := alertFilter(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.Summary(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	by, err := uuid.Parse(s.ProfileID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "session has no valid profile")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, err := h.svc.Acknowledge(c.Request().Context(), id, by)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}
