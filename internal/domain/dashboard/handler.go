package dashboard

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.Dashboard)
	api.GET("/screens", h.Screens)
}

func (h *Handler) Dashboard(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Build(c.Request().Context(), s)
	switch {
	case errors.Is(err, ErrUnknownRole):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNoProfile):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

type screensResponse struct {
	Role    auth.Role `json:"role"`
	Home    string    `json:"home"`
	Screens []Screen  `json:"screens"`
}

func (h *Handler) Screens(c echo.Context) error {
	s, err := auth.RequireSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, screensResponse{Role: s.Role, Home: HomePath(s.Role), Screens: ScreensFor(s.Role)})
}
