package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/canteen-voting/internal/policy"
)

// Context keys set by JWTAuth.
const (
	identityKey = "identity"
	userIDKey   = "user_id"
	roleKey     = "role"
)

// IdentityFrom returns the identity JWTAuth attached to c, or nil.
func IdentityFrom(c echo.Context) *policy.Identity {
	id, _ := c.Get(identityKey).(*policy.Identity)
	return id
}

// setIdentity attaches id to c.
func setIdentity(c echo.Context, id *policy.Identity) {
	c.Set(identityKey, id)
	c.Set(userIDKey, id.UserID)
	c.Set(roleKey, string(id.Role))
}

// userID returns the authenticated user's id, or "guest".
func userID(c echo.Context) string {
	if id := IdentityFrom(c); id != nil && id.UserID != "" {
		return id.UserID
	}
	return "guest"
}
