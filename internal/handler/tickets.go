package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/model"
	"github.com/helpdeskhq/helpdesk/internal/service"
)

// TicketHandler serves /tickets.
type TicketHandler struct {
	Tickets *service.TicketService
	Logger  *zap.Logger
}

func NewTicketHandler(tickets *service.TicketService, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{Tickets: tickets, Logger: logger}
}

type createTicketReq struct {
	Subject     string `json:"subject" validate:"required"`
	Description string `json:"description"`
	OpenedBy    uint64 `json:"opened_by" validate:"required"`
	Priority    string `json:"priority"`
}
type assignReq struct {
	ActorID    uint64 `json:"actor_id" validate:"required"`
	AssigneeID uint64 `json:"assignee_id" validate:"required"`
}
type statusReq struct {
	ActorID   uint64 `json:"actor_id" validate:"required"`
	NewStatus string `json:"new_status" validate:"required"`
}

func (h *TicketHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	tickets, err := h.Tickets.List(ctx)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, tickets)
}

// Create opens a ticket.  opened_by must be the caller unless the caller
// is an administrator.
func (h *TicketHandler) Create(c echo.Context) error {
	var req createTicketReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	caller, err := callerOf(ctx, c, h.Tickets.Store)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	t, err := h.Tickets.Create(ctx, caller, model.NewTicket{
		Subject:     req.Subject,
		Description: req.Description,
		OpenedBy:    req.OpenedBy,
		Priority:    req.Priority,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "ticket_id": t.ID})
}

func (h *TicketHandler) Assign(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	var req assignReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	caller, err := callerOf(ctx, c, h.Tickets.Store)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Tickets.Assign(ctx, caller, req.ActorID, id, req.AssigneeID); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *TicketHandler) Unassign(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	caller, err := callerOf(ctx, c, h.Tickets.Store)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Tickets.Unassign(ctx, caller, id); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *TicketHandler) Status(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	var req statusReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	caller, err := callerOf(ctx, c, h.Tickets.Store)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Tickets.SetStatus(ctx, caller, req.ActorID, id, req.NewStatus); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
