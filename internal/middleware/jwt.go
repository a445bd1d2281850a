package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject and role claims into the request context.  The
// provided secret must match the one used when issuing tokens.  Handlers
// read the authenticated user through UserID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Only HMAC signed tokens are accepted; anything else is
			// rejected before the key is handed out.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !tok.Valid {
				return unauthorized(c, "invalid token")
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(c, "invalid claims")
			}
			sub := claimString(claims["sub"])
			if sub == "" {
				return unauthorized(c, "token has no subject")
			}

			c.Set(ctxUserID, sub)
			c.Set(ctxRole, claimString(claims["role"]))
			return next(c)
		}
	}
}

// claimString accepts string and numeric subjects; JSON numbers decode
// as float64.
func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": msg})
}
