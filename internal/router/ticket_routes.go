package router

import (
	"github.com/labstack/echo/v4"

	"github.com/helpdeskhq/helpdesk/internal/handler"
	"github.com/helpdeskhq/helpdesk/internal/middleware"
	"github.com/helpdeskhq/helpdesk/internal/model"
)

// RegisterTickets mounts /tickets.  All routes need a valid JWT.  Opening
// a ticket needs no extra permission; the handler checks that opened_by
// is the caller.
func RegisterTickets(e *echo.Echo, t *handler.TicketHandler, d Deps) {
	g := e.Group("/tickets", middleware.JWTAuth(d.Cfg.JWTSecret))
	g.GET("", t.List, middleware.RequirePermission(d.Access, d.Logger, model.PermTicketsRead))
	g.POST("", t.Create)

	write := middleware.RequirePermission(d.Access, d.Logger, model.PermTicketsWrite)
	g.PUT("/:id/assign", t.Assign, write)
	g.DELETE("/:id/assign", t.Unassign, write)
	g.PUT("/:id/status", t.Status, write)
}
