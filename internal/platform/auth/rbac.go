package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks the session role against roles.
// Admins pass every check.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := SessionFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if HasRole(s.Role, roles...) {
				return next(c)
			}
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}

// RequireStaff admits every role except patient.
func RequireStaff() echo.MiddlewareFunc {
	return RequireRole(StaffRoles...)
}

// HasRole reports whether have satisfies any of the wanted roles.
func HasRole(have Role, wanted ...Role) bool {
	if have == RoleAdmin {
		return true
	}
	for _, w := range wanted {
		if have == w {
			return true
		}
	}
	return false
}
