package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/canteen-voting/internal/policy"
)

// Require enforces the access policy for op.  It must run after JWTAuth.
// A rejected request never reaches the handler.
func Require(op policy.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := policy.Authorize(IdentityFrom(c), op)
			switch {
			case err == nil:
				return next(c)
			case errors.Is(err, policy.ErrUnauthorized):
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "authentication required"})
			default:
				return c.JSON(http.StatusForbidden, echo.Map{"success": false, "message": "forbidden"})
			}
		}
	}
}
