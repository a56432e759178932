package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/canteen-voting/internal/config"
	"github.com/iliyamo/canteen-voting/internal/middleware"
	"github.com/iliyamo/canteen-voting/internal/model"
	"github.com/iliyamo/canteen-voting/internal/repository"
	"github.com/iliyamo/canteen-voting/internal/utils"
)

// maxNameLen caps display names in runes; the column itself allows more.
const maxNameLen = 100

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Log    *logrus.Entry

	names *bluemonday.Policy
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, log *logrus.Entry) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Log: log, names: bluemonday.StrictPolicy()}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // student | vendor
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}
type authResp struct {
	Success bool      `json:"success"`
	User    userPart  `json:"user"`
	Token   string    `json:"token"` // same as Access.Token
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// sanitizeName strips markup and surrounding space from a display name.
func (h *AuthHandler) sanitizeName(s string) string {
	return strings.TrimSpace(h.names.Sanitize(strings.TrimSpace(s)))
}

// Register creates a user and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	name := h.sanitizeName(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case name == "" || email == "" || req.Password == "":
		return fail(c, http.StatusBadRequest, "name, email and password are required")
	case utf8.RuneCountInString(name) > maxNameLen:
		return fail(c, http.StatusBadRequest, "name too long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fail(c, http.StatusBadRequest, "invalid email")
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return fail(c, http.StatusBadRequest, "role must be student or vendor")
	}

	ctx, cancel := withTimeout(c, h.Cfg.RequestTimeout)
	defer cancel()

	u, err := h.Users.Create(ctx, name, email, req.Password, role, h.Cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "User already exists")
	case errors.Is(err, utils.ErrPasswordTooLong):
		return fail(c, http.StatusBadRequest, "password too long")
	case err != nil:
		h.Log.WithError(err).Error("register: create user")
		return fail(c, http.StatusInternalServerError, "Error registering user")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Log.WithError(err).Error("issue tokens")
		return fail(c, http.StatusInternalServerError, "issue tokens failed")
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email/password required")
	}

	ctx, cancel := withTimeout(c, h.Cfg.RequestTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		h.Log.WithError(err).Error("login: load user")
		return fail(c, http.StatusInternalServerError, "Error logging in")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "Invalid credentials")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Log.WithError(err).Error("issue tokens")
		return fail(c, http.StatusInternalServerError, "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := withTimeout(c, h.Cfg.RequestTimeout)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "invalid refresh")
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.WithError(err).Error("refresh: revoke old token")
		return fail(c, http.StatusInternalServerError, "refresh failed")
	}
	u, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, http.StatusUnauthorized, "invalid refresh")
	}
	if err != nil {
		h.Log.WithError(err).Error("refresh: load user")
		return fail(c, http.StatusInternalServerError, "load user failed")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Log.WithError(err).Error("issue tokens")
		return fail(c, http.StatusInternalServerError, "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh
// token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := withTimeout(c, h.Cfg.RequestTimeout)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "invalid refresh")
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "invalid refresh")
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		h.Log.WithError(err).Error("refresh-access: sign token")
		return fail(c, http.StatusInternalServerError, "issue access failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"token":   access.Token,
		"access":  tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes one refresh token when the body carries it, or every
// refresh token of the caller when only a valid bearer token is presented.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := withTimeout(c, h.Cfg.RequestTimeout)
	defer cancel()

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return fail(c, http.StatusUnauthorized, "invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			h.Log.WithError(err).Error("logout: revoke token")
			return fail(c, http.StatusInternalServerError, "logout failed")
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return fail(c, http.StatusBadRequest, "provide Authorization header or refresh_token")
	}
	uid, _, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return fail(c, http.StatusUnauthorized, "invalid token")
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		h.Log.WithError(err).Error("logout: revoke all")
		return fail(c, http.StatusInternalServerError, "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the identity carried by the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	id := middleware.IdentityFrom(c)
	if id == nil {
		return fail(c, http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user_id": id.UserID,
		"role":    id.Role,
	})
}

// issue signs an access token and stores a fresh refresh token for u.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, fmt.Errorf("store refresh token: %w", err)
	}
	return authResp{
		Success: true,
		User:    userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role},
		Token:   access.Token,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}
