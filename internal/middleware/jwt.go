package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/canteen-voting/internal/policy"
	"github.com/iliyamo/canteen-voting/internal/utils"
)

// JWTAuth validates a Bearer access token and attaches the caller's identity
// to the context.  Handlers read it with IdentityFrom.  Requests without a
// valid token are rejected with 401 before any handler runs.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			uid, role, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "invalid token"})
			}
			setIdentity(c, &policy.Identity{UserID: uid, Role: role})
			return next(c)
		}
	}
}
