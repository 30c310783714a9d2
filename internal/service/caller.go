package service

import (
	"github.com/helpdeskhq/helpdesk/internal/authz"
	"github.com/helpdeskhq/helpdesk/internal/model"
)

// Caller is the authenticated user behind a request.  Roles always come
// from the store, never from the request body or the token.
type Caller struct {
	ID    uint64
	Roles []string
}

// IsAdmin reports whether the caller holds the ADMIN role.
func (c Caller) IsAdmin() bool {
	return authz.HasRole(c.Roles, model.RoleAdmin)
}

// actsAs reports whether the caller may act on behalf of userID.
func (c Caller) actsAs(userID uint64) bool {
	return c.ID == userID || c.IsAdmin()
}
