package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/helpdeskhq/helpdesk/internal/middleware"
	"github.com/helpdeskhq/helpdesk/internal/repository"
	"github.com/helpdeskhq/helpdesk/internal/service"
)

// requestTimeout bounds every store call made on behalf of a request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

var errUnauthenticated = errors.New("unauthorized")

// callerOf builds the service caller for an authenticated request.  Roles
// come from the authorization middleware when it already loaded them, or
// straight from the store.
func callerOf(ctx context.Context, c echo.Context, store repository.Store) (service.Caller, error) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return service.Caller{}, errUnauthenticated
	}
	if roles, ok := middleware.Roles(c); ok {
		return service.Caller{ID: uid, Roles: roles}, nil
	}
	u, err := store.GetUser(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return service.Caller{}, errUnauthenticated
	}
	if err != nil {
		return service.Caller{}, err
	}
	if !u.IsActive {
		return service.Caller{}, errUnauthenticated
	}
	roles, err := store.UserRoles(ctx, uid)
	if err != nil {
		return service.Caller{}, err
	}
	return service.Caller{ID: uid, Roles: roles}, nil
}
