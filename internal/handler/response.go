package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/canteen-voting/internal/policy"
	"github.com/iliyamo/canteen-voting/internal/service"
)

// retryAfterSeconds is advertised with transient store failures.
const retryAfterSeconds = 1

// defaultTimeout bounds store calls when a handler has no timeout configured.
const defaultTimeout = 5 * time.Second

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(c.Request().Context(), d)
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"success": false, "message": msg})
}

// respondError maps an error kind to a status code and envelope.  Only the
// kind reaches the client; unexpected errors are logged with their detail.
func respondError(c echo.Context, log *logrus.Entry, err error) error {
	switch {
	case errors.Is(err, service.ErrAlreadyVoted):
		return fail(c, http.StatusBadRequest, "You have already voted this period")
	case errors.Is(err, service.ErrTargetNotFound):
		return fail(c, http.StatusBadRequest, "Vendor not found")
	case errors.Is(err, service.ErrInvalidInput):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, policy.ErrUnauthorized):
		return fail(c, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, policy.ErrForbidden):
		return fail(c, http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrTransientStore):
		log.WithError(err).Warn("transient store failure")
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		return fail(c, http.StatusInternalServerError, "Service temporarily unavailable, please retry")
	}
	log.WithError(err).Error("unexpected failure")
	return fail(c, http.StatusInternalServerError, "Internal server error")
}
