package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication: infrastructure
// endpoints and the sign-in/sign-up pair.
var publicPaths = map[string]bool{
	"/health":                true,
	"/health/db":             true,
	"/metrics":               true,
	"/api/v1/auth/signin":    true,
	"/api/v1/auth/signup":    true,
	"/realtime/v1/websocket": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
// The realtime route authenticates itself from the access_token query parameter.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path is a public endpoint.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
