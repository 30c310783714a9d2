package service

import (
	"context"
	"strings"

	"github.com/helpdeskhq/helpdesk/internal/model"
	"github.com/helpdeskhq/helpdesk/internal/queue"
	"github.com/helpdeskhq/helpdesk/internal/repository"
)

// TicketService implements the ticket lifecycle.  Callers may only act
// as themselves unless they hold ADMIN.
type TicketService struct {
	Store  repository.Store
	Events Publisher
}

func NewTicketService(store repository.Store, events Publisher) *TicketService {
	if events == nil {
		events = NopPublisher{}
	}
	return &TicketService{Store: store, Events: events}
}

func (s *TicketService) List(ctx context.Context) ([]model.Ticket, error) {
	return s.Store.ListTickets(ctx)
}

// Create opens a ticket.  Subject and opener are required; priority
// defaults to Média.  Nothing is stored when validation fails.
func (s *TicketService) Create(ctx context.Context, caller Caller, nt model.NewTicket) (model.Ticket, error) {
	nt.Subject = strings.TrimSpace(nt.Subject)
	nt.Description = strings.TrimSpace(nt.Description)
	if nt.Subject == "" || nt.OpenedBy == 0 {
		return model.Ticket{}, ErrMissingFields
	}
	if nt.Priority == "" {
		nt.Priority = model.PriorityMedium
	}
	if !model.IsPriority(nt.Priority) {
		return model.Ticket{}, ErrInvalidPriority
	}
	if !caller.actsAs(nt.OpenedBy) {
		return model.Ticket{}, ErrForbidden
	}
	t, err := s.Store.CreateTicket(ctx, nt)
	if err != nil {
		return model.Ticket{}, err
	}
	ev := queue.NewEvent(queue.TicketCreated)
	ev.TicketID, ev.ActorID, ev.UserID = t.ID, caller.ID, t.OpenedBy
	ev.Detail = t.Subject
	s.Events.Publish(ctx, ev)
	return t, nil
}

// Assign sets the assignee of a ticket on behalf of actorID.
func (s *TicketService) Assign(ctx context.Context, caller Caller, actorID, ticketID, assignee uint64) error {
	if actorID == 0 || assignee == 0 {
		return ErrMissingFields
	}
	if !caller.actsAs(actorID) {
		return ErrForbidden
	}
	if err := s.Store.AssignTicket(ctx, ticketID, &assignee); err != nil {
		return err
	}
	ev := queue.NewEvent(queue.TicketAssigned)
	ev.TicketID, ev.ActorID, ev.UserID = ticketID, actorID, assignee
	s.Events.Publish(ctx, ev)
	return nil
}

// Unassign clears the assignee.
func (s *TicketService) Unassign(ctx context.Context, caller Caller, ticketID uint64) error {
	if err := s.Store.AssignTicket(ctx, ticketID, nil); err != nil {
		return err
	}
	ev := queue.NewEvent(queue.TicketAssigned)
	ev.TicketID, ev.ActorID = ticketID, caller.ID
	ev.Detail = "unassigned"
	s.Events.Publish(ctx, ev)
	return nil
}

// SetStatus moves a ticket to one of the known statuses.  Any transition
// is allowed, including reopening a closed ticket.
func (s *TicketService) SetStatus(ctx context.Context, caller Caller, actorID, ticketID uint64, status string) error {
	status = strings.TrimSpace(status)
	if actorID == 0 || status == "" {
		return ErrMissingFields
	}
	if !model.IsStatus(status) {
		return ErrInvalidStatus
	}
	if !caller.actsAs(actorID) {
		return ErrForbidden
	}
	if err := s.Store.SetTicketStatus(ctx, ticketID, status); err != nil {
		return err
	}
	ev := queue.NewEvent(queue.TicketStatusChanged)
	ev.TicketID, ev.ActorID, ev.Detail = ticketID, actorID, status
	s.Events.Publish(ctx, ev)
	return nil
}
