package middleware

// identity.go holds the context keys set by the auth middleware and the
// accessors handlers use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	ctxUserID      = "user_id"
	ctxRoles       = "roles"
	ctxPermissions = "permissions"
)

// UserID returns the authenticated user id, if JWTAuth ran and succeeded.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Roles returns the store-loaded roles cached by RequireRole or
// RequirePermission, if either ran.
func Roles(c echo.Context) ([]string, bool) {
	r, ok := c.Get(ctxRoles).([]string)
	return r, ok
}

// Permissions returns the cached effective permission set.
func Permissions(c echo.Context) ([]string, bool) {
	p, ok := c.Get(ctxPermissions).([]string)
	return p, ok
}

// userKey identifies the caller for rate limiting: the user id when
// authenticated, "anon" otherwise.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
