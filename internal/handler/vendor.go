package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/canteen-voting/internal/model"
	"github.com/iliyamo/canteen-voting/internal/repository"
)

// UserHandler serves the vendor directory.
type UserHandler struct {
	Users   *repository.UserRepo
	Timeout time.Duration
	Log     *logrus.Entry
}

func NewUserHandler(users *repository.UserRepo, timeout time.Duration, log *logrus.Entry) *UserHandler {
	return &UserHandler{Users: users, Timeout: timeout, Log: log}
}

type vendorPart struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Vendors handles GET /api/users/vendors.  Credential hashes never leave
// the repository layer in this response.
func (h *UserHandler) Vendors(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	users, err := h.Users.ListByRole(ctx, model.RoleVendor)
	if err != nil {
		h.Log.WithError(err).Error("list vendors")
		return fail(c, http.StatusInternalServerError, "Error fetching vendors")
	}
	vendors := make([]vendorPart, 0, len(users))
	for _, u := range users {
		vendors = append(vendors, vendorPart{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "vendors": vendors})
}
