package router // package router wires handlers and middleware onto echo

import (
	"github.com/google/uuid"                        // request id generator
	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // recover, request id, CORS
	"github.com/redis/go-redis/v9"                  // optional rate limit and cache backend
	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/config"
	"github.com/helpdeskhq/helpdesk/internal/handler"    // HTTP handlers
	"github.com/helpdeskhq/helpdesk/internal/middleware" // JWT, role and permission checks
)

// Handlers groups every handler the router mounts.
type Handlers struct {
	Auth    *handler.AuthHandler
	Users   *handler.UserHandler
	Admin   *handler.AdminHandler
	Tickets *handler.TicketHandler
}

// Deps is what the middleware chain needs besides the handlers.  Redis may
// be nil, in which case rate limiting and caching are skipped.
type Deps struct {
	Cfg    config.Config
	Access middleware.AccessStore
	Redis  *redis.Client
	Logger *zap.Logger
}

// New builds the echo instance with the global middleware chain and every
// route of the API.
func New(d Deps, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	origins := d.Cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: origins}))

	RegisterRoutes(e)
	RegisterAuth(e, h.Auth, d)
	RegisterUsers(e, h.Users, d)
	RegisterAdmin(e, h.Admin, d)
	RegisterTickets(e, h.Tickets, d)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.Health)  // front-end connectivity check
	e.GET("/healthz", handler.Health) // load balancer check
}

// RegisterAuth mounts the session endpoints under /auth.  Everything but
// /auth/me is reachable without a token; the whole group is rate limited
// when Redis is available.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, d Deps) {
	g := e.Group("/auth", middleware.NewTokenBucket(config.LoadRateLimitConfig(), d.Redis, d.Logger))
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)   // revokes the refresh token in the body
	g.POST("/change-password", a.ChangePassword)
	g.GET("/me", a.Me, middleware.JWTAuth(d.Cfg.JWTSecret))
}
