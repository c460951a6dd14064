package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const claimsKey = "auth_claims"

type JWTConfig struct {
	Tokens *Tokens
	// Skipper bypasses authentication for public routes.
	Skipper func(c echo.Context) bool
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := BearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			claims, err := cfg.Tokens.Verify(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.Set(claimsKey, claims)
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), claims.Session())))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets requests without a token through as a development
// admin. Requests that do carry a token are still verified.
func DevAuthMiddleware(cfg JWTConfig, dev Session) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), dev)))
				return next(c)
			}
			return verified(c)
		}
	}
}

// ClaimsFromEcho returns the verified claims stored by JWTMiddleware.
func ClaimsFromEcho(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}

// RequireSession returns the caller's session or a 401 error.
func RequireSession(c echo.Context) (Session, error) {
	s, ok := SessionFromContext(c.Request().Context())
	if !ok {
		return Session{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return s, nil
}
