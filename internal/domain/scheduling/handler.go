package scheduling

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/pkg/pagination"
)

// Access decides whether a session may act on a patient's record.
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
	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.POST("/appointments/:id/status", h.SetAppointmentStatus)

	api.GET("/consultations", h.ListConsultations)
	api.GET("/consultations/:id", h.GetConsultation)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleHospitalDoctor, auth.RoleOnlineDoctor))
	doctors.POST("/consultations", h.CreateConsultation)
	doctors.POST("/consultations/:id/start", h.StartConsultation)
	doctors.POST("/consultations/:id/end", h.EndConsultation)
	doctors.POST("/consultations/:id/cancel", h.CancelConsultation)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSlotTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotAssigned), errors.Is(err, patient.ErrForbidden):
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

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func caller(c echo.Context) (auth.Session, uuid.UUID, error) {
	s, err := auth.RequireSession(c)
	if err != nil {
		return s, uuid.Nil, err
	}
	id, err := uuid.Parse(s.ProfileID)
	if err != nil {
		return s, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "session has no valid profile")
	}
	return s, id, nil
}

// scopePatient forces patients to name one of their own records.
func (h *Handler) scopePatient(c echo.Context, s auth.Session, patientID *uuid.UUID) error {
	if s.Role.IsStaff() {
		return nil
	}
	if patientID == nil {
		return echo.NewHTTPError(http.StatusForbidden, "patient_id is required")
	}
	if err := h.access.Authorize(c.Request().Context(), s, *patientID); err != nil {
		return httpError(err)
	}
	return nil
}

// -- Appointment --

func (h *Handler) CreateAppointment(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	var req CreateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.scopePatient(c, s, &req.PatientID); err != nil {
		return err
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	var f AppointmentFilter
	if f.DoctorID, err = queryUUID(c, "doctor_id"); err != nil {
		return err
	}
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return err
	}
	f.Status = AppointmentStatus(c.QueryParam("status"))
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := c.QueryParam(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
			}
			*dst = &t
		}
	}
	if err := h.scopePatient(c, s, f.PatientID); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := h.scopePatient(c, s, &a.PatientID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// SetAppointmentStatus lets staff drive the full status machine; patients may
// only cancel their own appointments.
func (h *Handler) SetAppointmentStatus(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if !s.Role.IsStaff() {
		if req.Status != AppointmentCancelled {
			return echo.NewHTTPError(http.StatusForbidden, "patients may only cancel appointments")
		}
		a, err := h.svc.GetAppointment(ctx, id)
		if err != nil {
			return httpError(err)
		}
		if err := h.scopePatient(c, s, &a.PatientID); err != nil {
			return err
		}
	}
	a, err := h.svc.SetAppointmentStatus(ctx, id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Consultation --

func (h *Handler) CreateConsultation(c echo.Context) error {
	var req CreateConsultationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DoctorID == uuid.Nil && req.AppointmentID == nil {
		_, me, err := caller(c)
		if err != nil {
			return err
		}
		req.DoctorID = me
	}
	cons, err := h.svc.CreateConsultation(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cons)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	var f ConsultationFilter
	if f.DoctorID, err = queryUUID(c, "doctor_id"); err != nil {
		return err
	}
	if f.PatientID, err = queryUUID(c, "patient_id"); err != nil {
		return err
	}
	f.Status = ConsultationStatus(c.QueryParam("status"))
	if err := h.scopePatient(c, s, f.PatientID); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConsultations(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Consultation{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetConsultation(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cons, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if err := h.scopePatient(c, s, &cons.PatientID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) StartConsultation(c echo.Context) error {
	s, me, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cons, err := h.svc.StartConsultation(c.Request().Context(), id, me, s.Role == auth.RoleAdmin)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) EndConsultation(c echo.Context) error {
	s, me, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req EndRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cons, err := h.svc.EndConsultation(c.Request().Context(), id, me, s.Role == auth.RoleAdmin, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) CancelConsultation(c echo.Context) error {
	s, me, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cons, err := h.svc.CancelConsultation(c.Request().Context(), id, me, s.Role == auth.RoleAdmin)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cons)
}
