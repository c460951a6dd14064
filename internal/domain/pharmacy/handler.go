package pharmacy

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/pkg/pagination"
)

// Access decides whether a session may read a patient's record.
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
	api.GET("/prescriptions", h.ListPrescriptions)
	api.GET("/prescriptions/:id", h.GetPrescription)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleHospitalDoctor, auth.RoleOnlineDoctor))
	doctors.POST("/prescriptions", h.Prescribe)
	doctors.POST("/prescriptions/:id/cancel", h.CancelPrescription)

	pharmacists := api.Group("", auth.RequireRole(auth.RolePharmacist))
	pharmacists.POST("/prescriptions/:id/dispense", h.Dispense)
	pharmacists.GET("/pharmacy-orders", h.ListOrders)
	pharmacists.POST("/pharmacy-orders/:id/status", h.AdvanceOrder)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrExpired):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, patient.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func caller(c echo.Context) (uuid.UUID, error) {
	s, err := auth.RequireSession(c)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s.ProfileID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "session has no valid profile")
	}
	return id, nil
}

func (h *Handler) Prescribe(c echo.Context) error {
	doctor, err := caller(c)
	if err != nil {
		return err
	}
	var req PrescribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Prescribe(c.Request().Context(), doctor, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	var f PrescriptionFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = &id
	}
	f.Status = PrescriptionStatus(c.QueryParam("status"))

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
	items, total, err := h.svc.ListPrescriptions(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPrescription(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPrescription(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if err := h.access.Authorize(ctx, s, p.PatientID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CancelPrescription(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.CancelPrescription(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Dispense(c echo.Context) error {
	pharmacist, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req DispenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Dispense(c.Request().Context(), id, pharmacist, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOrders(c.Request().Context(), OrderStatus(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*PharmacyOrder{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AdvanceOrder(c echo.Context) error {
	pharmacist, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req OrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.AdvanceOrder(c.Request().Context(), id, pharmacist, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o)
}
