package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	api.POST("/auth/signup", h.SignUp)
	api.POST("/auth/signin", h.SignIn)
	api.POST("/auth/signout", h.SignOut)

	api.GET("/profiles/me", h.GetMe)
	api.PUT("/profiles/me", h.UpdateMe)
	api.GET("/doctors", h.ListDoctors)

	staff := api.Group("", auth.RequireStaff())
	staff.GET("/profiles/:id", h.GetProfile)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/profiles", h.ListProfiles)
	admin.POST("/staff", h.CreateStaff)
	admin.PUT("/profiles/:id", h.UpdateProfile)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func profileID(c echo.Context) (uuid.UUID, error) {
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

func (h *Handler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.SignUp(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.SignIn(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "sign in failed")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SignOut(c echo.Context) error {
	claims := auth.ClaimsFromEcho(c)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	h.svc.SignOut(claims)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetMe(c echo.Context) error {
	id, err := profileID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	id, err := profileID(c)
	if err != nil {
		return err
	}
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateMe(c.Request().Context(), id, upd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetProfile(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) list(c echo.Context, f ProfileFilter) error {
	pg := pagination.FromContext(c)
	profiles, total, err := h.svc.ListProfiles(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(profiles, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListProfiles(c echo.Context) error {
	var f ProfileFilter
	if roles := c.QueryParam("role"); roles != "" {
		for _, r := range strings.Split(roles, ",") {
			role, err := auth.ParseRole(strings.TrimSpace(r))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			f.Roles = append(f.Roles, role)
		}
	}
	return h.list(c, f)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	if _, err := auth.RequireSession(c); err != nil {
		return err
	}
	return h.list(c, ProfileFilter{Roles: DoctorRoles})
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var req AccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreateStaff(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var upd AdminProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateProfile(c.Request().Context(), id, upd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}
