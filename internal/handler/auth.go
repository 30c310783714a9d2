package handler

import (
	"errors"
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/config"     // app configuration
	"github.com/helpdeskhq/helpdesk/internal/middleware" // authenticated user id
	"github.com/helpdeskhq/helpdesk/internal/model"
	"github.com/helpdeskhq/helpdesk/internal/repository" // store and its sentinel errors
	"github.com/helpdeskhq/helpdesk/internal/service"
	"github.com/helpdeskhq/helpdesk/internal/utils" // token issuing
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Accounts *service.AccountService
	Store    repository.Store
	Logger   *zap.Logger
}

func NewAuthHandler(cfg config.Config, accounts *service.AccountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Accounts: accounts, Store: accounts.Store, Logger: logger}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
type changePasswordReq struct {
	Email           string `json:"email" validate:"required"`
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type identityResp struct {
	User        model.User `json:"user"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
}
type authResp struct {
	identityResp
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// invalidCredentials is the single body returned for every failed login,
// whatever the reason.
var invalidCredentials = echo.Map{"error": "invalid credentials"}

// Login: verify and return the identity plus a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	id, err := h.Accounts.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.JSON(http.StatusUnauthorized, invalidCredentials)
	}
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return h.issue(c, id)
}

// issue signs an access token, stores the hash of a new refresh token and
// writes the auth response.
func (h *AuthHandler) issue(c echo.Context, id service.Identity) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, id.User.ID, h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Store.StoreRefresh(ctx, id.User.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, authResp{
		identityResp: identityResp{User: id.User, Roles: id.Roles, Permissions: id.Permissions},
		Access:       tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh:      tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}

// Refresh: validate by hash, revoke old, issue new.  The user must still
// exist and be active.  Only the request that actually revokes the old
// token gets a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Store.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return respondError(c, h.Logger, err)
	}
	id, err := h.Accounts.Load(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInactive) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	revoked, err := h.Store.RevokeRefresh(ctx, hash)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if !revoked { // spent by a concurrent refresh
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	return h.issue(c, id)
}

// Logout revokes the given refresh token.  The access token simply
// expires.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Store.ValidateRefresh(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrInvalidToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		return respondError(c, h.Logger, err)
	}
	revoked, err := h.Store.RevokeRefresh(ctx, hash)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if !revoked {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword is the self-service password change.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.ChangePassword(ctx, req.Email, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Me returns the caller's user record with store-loaded roles and
// effective permissions.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	id, err := h.Accounts.Load(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, identityResp{User: id.User, Roles: id.Roles, Permissions: id.Permissions})
}
