package model

import "strings"

// Role names.  The catalog is fixed; users cannot define new roles.
const (
	RoleUser  = "USUARIO"
	RoleAgent = "AGENTE"
	RoleAdmin = "ADMIN"
)

// Permission codes.  Like roles, the catalog is fixed.
const (
	PermUsersRead    = "users.read"
	PermUsersWrite   = "users.write"
	PermTicketsRead  = "tickets.read"
	PermTicketsWrite = "tickets.write"
	PermAdminPanel   = "admin.panel"
)

// BaselinePermission is granted directly to every newly created user.
const BaselinePermission = PermTicketsRead

// DefaultRoles returns the role catalog in its canonical order.
func DefaultRoles() []string {
	return []string{RoleUser, RoleAgent, RoleAdmin}
}

// DefaultPermissions returns the permission catalog in its canonical order.
func DefaultPermissions() []string {
	return []string{PermUsersRead, PermUsersWrite, PermTicketsRead, PermTicketsWrite, PermAdminPanel}
}

// RolePermissions lists the permissions implied by holding a role.
// ADMIN implies the whole catalog.
func RolePermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return DefaultPermissions()
	case RoleAgent:
		return []string{PermTicketsRead, PermTicketsWrite, PermUsersRead}
	case RoleUser:
		return []string{PermTicketsRead}
	}
	return nil
}

// IsRole reports whether name is part of the role catalog.
func IsRole(name string) bool {
	return contains(DefaultRoles(), name)
}

// IsPermission reports whether code is part of the permission catalog.
func IsPermission(code string) bool {
	return contains(DefaultPermissions(), code)
}

// NormalizeRole upper-cases and trims a role name coming from a client.
func NormalizeRole(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
