package careteam

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctor-profiles", h.ListDoctors)
	api.GET("/doctor-profiles/:id", h.GetDoctor)
	api.GET("/doctor-change-requests", h.ListRequests)
	api.GET("/patients/:id/records", h.ListRecords)

	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleHospitalDoctor, auth.RoleOnlineDoctor))
	doctors.PUT("/doctor-profiles/me", h.SaveProfile)

	patients := api.Group("", auth.RequireRole(auth.RolePatient))
	patients.POST("/doctor-change-requests", h.RequestChange)

	admins := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admins.PUT("/doctor-profiles/:id/verified", h.Verify)
	admins.POST("/doctor-change-requests/:id/approve", h.Approve)
	admins.POST("/doctor-change-requests/:id/reject", h.Reject)

	clinicians := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleHospitalDoctor, auth.RoleOnlineDoctor, auth.RoleNurse))
	clinicians.POST("/patients/:id/records", h.AddRecord)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPendingRequest), errors.Is(err, ErrNotPending), errors.Is(err, ErrSameDoctor):
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

// -- Directory --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Doctors(c.Request().Context(), c.QueryParam("specialization"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*DoctorProfile{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// GetDoctor looks a directory entry up by the doctor's profile id.
func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Doctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SaveProfile(c echo.Context) error {
	s, me, err := caller(c)
	if err != nil {
		return err
	}
	var in ProfileInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.SaveProfile(c.Request().Context(), me, s.Role, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type verifyRequest struct {
	Verified bool `json:"verified"`
}

func (h *Handler) Verify(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Verify(c.Request().Context(), id, req.Verified)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// -- Change requests --

func (h *Handler) RequestChange(c echo.Context) error {
	_, me, err := caller(c)
	if err != nil {
		return err
	}
	var in ChangeRequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.RequestChange(c.Request().Context(), me, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListRequests(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	if s.Role != auth.RoleAdmin && s.Role != auth.RolePatient {
		return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Requests(c.Request().Context(), s, RequestStatus(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*ChangeRequest{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type approveRequest struct {
	DoctorID *uuid.UUID `json:"doctor_id,omitempty"`
}

func (h *Handler) Approve(c echo.Context) error {
	_, me, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Approve(c.Request().Context(), me, id, req.DoctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Reject(c echo.Context) error {
	_, me, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Reject(c.Request().Context(), me, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// -- Records --

func (h *Handler) ListRecords(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Records(c.Request().Context(), s, id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AddRecord(c echo.Context) error {
	_, me, err := caller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.AddRecord(c.Request().Context(), me, id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}
