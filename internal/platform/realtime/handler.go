package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Path is the websocket endpoint clients connect to.
const Path = "/realtime/v1/websocket"

const maxFrameSize = 64 << 10

type HandlerConfig struct {
	SendBuffer   int
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	// SessionCheck is how often an open connection rechecks its token for
	// sign-out and expiry.
	SessionCheck time.Duration
	// AllowedOrigins is checked against the Origin header of browser
	// clients; "*" allows any origin.
	AllowedOrigins []string
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 90 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SessionCheck <= 0 {
		c.SessionCheck = 15 * time.Second
	}
	return c
}

// Handler upgrades authenticated HTTP requests to websocket connections and
// serves the join/leave/heartbeat protocol on them.
type Handler struct {
	hub      *Hub
	tokens   *auth.Tokens
	policy   Policy
	logger   zerolog.Logger
	cfg      HandlerConfig
	upgrader gorillawebsocket.Upgrader
}

func NewHandler(hub *Hub, tokens *auth.Tokens, policy Policy, logger zerolog.Logger, cfg HandlerConfig) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		hub:    hub,
		tokens: tokens,
		policy: policy,
		logger: logger,
		cfg:    cfg,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET(Path, h.HandleConnect)
}

func (h *Handler) authenticate(c echo.Context) (*auth.Claims, error) {
	token := c.QueryParam("access_token")
	if token == "" {
		var err error
		if token, err = auth.BearerToken(c.Request().Header.Get("Authorization")); err != nil {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "access_token is required")
		}
	}
	claims, err := h.tokens.Verify(token)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return claims, nil
}

// HandleConnect authenticates the request, upgrades it and pumps frames
// until either side goes away.
func (h *Handler) HandleConnect(c echo.Context) error {
	claims, err := h.authenticate(c)
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := NewClient(uuid.NewString(), claims.Session(), h.cfg.SendBuffer)
	h.hub.Register(client)
	log := h.logger.With().Str("client_id", client.ID).Str("profile_id", client.Session.ProfileID).Logger()
	log.Info().Str("role", string(client.Session.Role)).Msg("realtime client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(client, ws, claims, log)
	}()

	h.readPump(c.Request().Context(), client, ws, log)

	h.hub.Unregister(client)
	<-done
	log.Info().Msg("realtime client disconnected")
	return nil
}

func (h *Handler) readPump(ctx context.Context, client *Client, ws *gorillawebsocket.Conn, log zerolog.Logger) {
	defer ws.Close()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseNormalClosure, gorillawebsocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("realtime read ended")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))

		var msg Message
		var reply Message
		if err := json.Unmarshal(data, &msg); err != nil {
			reply = Message{Type: TypeError, Error: "malformed frame"}
		} else {
			reply = h.dispatch(ctx, client, msg, log)
		}
		if !h.hub.enqueue(client, reply) {
			log.Warn().Msg("reply dropped, closing connection")
			return
		}
	}
}

func errorReply(msg Message, text string) Message {
	return Message{Type: TypeError, Ref: msg.Ref, Channel: msg.Channel, Error: text}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, msg Message, log zerolog.Logger) Message {
	switch msg.Type {
	case TypeJoin:
		sub, err := NewSubscription(msg.Channel, msg.Table, msg.Filter, msg.Events)
		if err != nil {
			return errorReply(msg, err.Error())
		}
		if err := h.policy.Authorize(ctx, client.Session, sub); err != nil {
			if errors.Is(err, ErrForbidden) {
				log.Warn().Err(err).Str("channel", sub.Channel).Str("table", sub.Table).Msg("join rejected")
				return errorReply(msg, err.Error())
			}
			log.Error().Err(err).Str("channel", sub.Channel).Msg("join authorization failed")
			return errorReply(msg, "could not authorize channel")
		}
		if err := h.hub.Join(client, sub); err != nil {
			return errorReply(msg, err.Error())
		}
		log.Debug().Str("channel", sub.Channel).Str("table", sub.Table).Str("filter", sub.Filter.String()).Msg("joined")
		return Message{Type: TypeAck, Ref: msg.Ref, Channel: msg.Channel}

	case TypeLeave:
		if err := h.hub.Leave(client, msg.Channel); err != nil {
			return errorReply(msg, err.Error())
		}
		return Message{Type: TypeAck, Ref: msg.Ref, Channel: msg.Channel}

	case TypeHeartbeat:
		return Message{Type: TypeAck, Ref: msg.Ref}

	default:
		return errorReply(msg, "unknown message type "+string(msg.Type))
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn, claims *auth.Claims, log zerolog.Logger) {
	ping := time.NewTicker(h.cfg.IdleTimeout / 2)
	defer ping.Stop()
	session := time.NewTicker(h.cfg.SessionCheck)
	defer session.Stop()
	defer ws.Close()

	for {
		select {
		case data, ok := <-client.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage,
					gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, data); err != nil {
				return
			}

		case <-client.Overflowed():
			_ = ws.WriteControl(gorillawebsocket.CloseMessage,
				gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseTryAgainLater, "send buffer overflow"),
				time.Now().Add(h.cfg.WriteTimeout))
			return

		case <-ping.C:
			if err := ws.WriteControl(gorillawebsocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}

		case <-session.C:
			if err := h.tokens.Recheck(claims); err != nil {
				log.Info().Err(err).Msg("closing realtime connection of ended session")
				_ = ws.WriteControl(gorillawebsocket.CloseMessage,
					gorillawebsocket.FormatCloseMessage(gorillawebsocket.ClosePolicyViolation, err.Error()),
					time.Now().Add(h.cfg.WriteTimeout))
				return
			}
		}
	}
}
