package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/authz"
	"github.com/helpdeskhq/helpdesk/internal/model"
	"github.com/helpdeskhq/helpdesk/internal/repository"
)

// AccessStore is the part of the store the authorization middleware reads.
type AccessStore interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
	UserRoles(ctx context.Context, id uint64) ([]string, error)
	EffectivePermissions(ctx context.Context, id uint64) ([]string, error)
}

// RequireRole returns a middleware that lets the request through only if
// the authenticated user currently holds one of roles.  Roles are read
// from the store on every request so a revoke takes effect immediately;
// nothing in the token or the body is trusted.  It must run after JWTAuth.
func RequireRole(store AccessStore, logger *zap.Logger, roles ...string) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			held, _, err := loadAccess(c, store)
			if err != nil {
				return accessError(c, logger, err)
			}
			for _, r := range roles {
				if authz.HasRole(held, r) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}

// RequirePermission returns a middleware that checks code against the
// user's effective permissions.  ADMIN passes every check.
func RequirePermission(store AccessStore, logger *zap.Logger, code string) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles, perms, err := loadAccess(c, store)
			if err != nil {
				return accessError(c, logger, err)
			}
			if !authz.Allowed(roles, perms, code) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

var errNoIdentity = errors.New("no authenticated user")

// loadAccess reads the caller's roles and effective permissions from the
// store once per request and caches them on the context.
func loadAccess(c echo.Context, store AccessStore) ([]string, []string, error) {
	if roles, ok := Roles(c); ok {
		perms, _ := Permissions(c)
		return roles, perms, nil
	}
	uid, ok := UserID(c)
	if !ok {
		return nil, nil, errNoIdentity
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := store.GetUser(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	if !u.IsActive {
		return nil, nil, repository.ErrInactive
	}
	roles, err := store.UserRoles(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	perms, err := store.EffectivePermissions(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	c.Set(ctxRoles, roles)
	c.Set(ctxPermissions, perms)
	return roles, perms, nil
}

// accessError answers 401 when the token's user no longer exists or was
// deactivated.  Store failures are logged and answered with 500.
func accessError(c echo.Context, logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, errNoIdentity),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrInactive):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	uid, _ := UserID(c)
	logger.Error("load access failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Uint64("user_id", uid),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
