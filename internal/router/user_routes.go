package router

import (
	"github.com/labstack/echo/v4"

	"github.com/helpdeskhq/helpdesk/internal/config"
	"github.com/helpdeskhq/helpdesk/internal/handler"
	"github.com/helpdeskhq/helpdesk/internal/middleware"
	"github.com/helpdeskhq/helpdesk/internal/model"
)

// RegisterUsers mounts /users.  Registration is open; a token, when
// present, lets an administrator create privileged accounts.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, d Deps) {
	e.GET("/users", u.List,
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.RequirePermission(d.Access, d.Logger, model.PermUsersRead),
	)
	e.POST("/users", u.Create, middleware.OptionalJWT(d.Cfg.JWTSecret))
}

// RegisterAdmin mounts the catalog and per-user administration under
// /admin.  Catalog reads are public and cached; per-user reads need
// users.read; every mutation needs the ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, d Deps) {
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), d.Redis, d.Logger)
	e.GET("/admin/roles", a.Roles, cache)
	e.GET("/admin/permissions", a.Permissions, cache)

	read := e.Group("/admin/users",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.RequirePermission(d.Access, d.Logger, model.PermUsersRead),
	)
	read.GET("/:id/roles", a.UserRoles)
	read.GET("/:id/perms", a.UserPerms) // ?scope=direct for direct grants only

	g := e.Group("/admin/users",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.RequireRole(d.Access, d.Logger, model.RoleAdmin),
	)
	g.POST("/:id/grant-role", a.GrantRole)
	g.POST("/:id/revoke-role", a.RevokeRole)
	g.POST("/:id/grant-perm", a.GrantPerm)
	g.POST("/:id/revoke-perm", a.RevokePerm)
	g.POST("/:id/set-password", a.SetPassword)
	g.POST("/:id/activate", a.Activate)
	g.POST("/:id/deactivate", a.Deactivate)
}
