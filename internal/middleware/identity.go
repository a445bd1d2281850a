package middleware

// identity.go exposes the authenticated identity stored by JWTAuth.

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok {
		return s
	}
	return ""
}

// Role returns the role claim of the authenticated user.
func Role(c echo.Context) string {
	if s, ok := c.Get(ctxRole).(string); ok {
		return s
	}
	return ""
}
