package messaging

import (
	"errors"
	"net/http"

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
	api.POST("/messages", h.Send)
	api.GET("/messages", h.List)
	api.GET("/messages/unread", h.Unread)
	api.POST("/messages/read", h.MarkConversationRead)
	api.PUT("/messages/:id/read", h.MarkRead)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownReceiver):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotRecipient):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func me(c echo.Context) (uuid.UUID, error) {
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

func withParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.QueryParam("with"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "with must be a profile id")
	}
	return id, nil
}

func (h *Handler) Send(c echo.Context) error {
	from, err := me(c)
	if err != nil {
		return err
	}
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Send(c.Request().Context(), from, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

// List returns the caller's inbox, or with ?with= the conversation with one
// other profile.
func (h *Handler) List(c echo.Context) error {
	id, err := me(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var msgs []Message
	var total int
	if c.QueryParam("with") != "" {
		with, err := withParam(c)
		if err != nil {
			return err
		}
		msgs, total, err = h.svc.Conversation(ctx, id, with, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	} else {
		msgs, total, err = h.svc.Inbox(ctx, id, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(msgs, total, pg.Limit, pg.Offset))
}

func (h *Handler) Unread(c echo.Context) error {
	id, err := me(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, Unread{Count: n})
}

func (h *Handler) MarkConversationRead(c echo.Context) error {
	id, err := me(c)
	if err != nil {
		return err
	}
	with, err := withParam(c)
	if err != nil {
		return err
	}
	res, err := h.svc.MarkConversationRead(c.Request().Context(), id, with)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := me(c)
	if err != nil {
		return err
	}
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.MarkRead(c.Request().Context(), msgID, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}
