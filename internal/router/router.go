// Package router defines how HTTP routes are registered for the API.
package router

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/canteen-voting/internal/config"
	"github.com/iliyamo/canteen-voting/internal/handler"
	"github.com/iliyamo/canteen-voting/internal/middleware"
	"github.com/iliyamo/canteen-voting/internal/policy"
)

// New returns an Echo instance with the global middleware stack: panic
// recovery, request ids, CORS for the SPA and request logging.
func New(cfg config.Config, log *logrus.Entry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.RequestLogger(log))
	return e
}

// RegisterRoutes registers the unauthenticated health endpoints.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers authentication routes under /api/auth.  limiter
// is applied to login only.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.Require(policy.WhoAmI))
}

// RegisterUsers registers the vendor directory.  cache runs after the
// policy check so anonymous callers never see a cached body.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/api/users", middleware.JWTAuth(jwtSecret))
	g.GET("/vendors", u.Vendors, middleware.Require(policy.ListVendors), cache)
}

// RegisterVote registers the vote routes under /api/vote.  Every route
// requires a valid access token; the policy decides the rest.  limiter is
// applied to casting only.
func RegisterVote(e *echo.Echo, v *handler.VoteHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/vote", middleware.JWTAuth(jwtSecret))
	g.POST("/cast", v.Cast, middleware.Require(policy.CastVote), limiter)
	g.GET("/results", v.Results, middleware.Require(policy.ViewResults))
	g.GET("/status", v.Status, middleware.Require(policy.VoteStatus))
}
