// Package queue defines the domain events exchanged over the message broker
// and the consumer that turns them into an audit log.
package queue

import "time"

// EventsQueue is the durable queue every domain event is published to.
const EventsQueue = "helpdesk.events"

// Event types.
const (
	UserCreated         = "user.created"
	UserPasswordChanged = "user.password_changed"
	UserActivated       = "user.activated"
	UserDeactivated     = "user.deactivated"
	RoleGranted         = "role.granted"
	RoleRevoked         = "role.revoked"
	PermissionGranted   = "permission.granted"
	PermissionRevoked   = "permission.revoked"
	TicketCreated       = "ticket.created"
	TicketAssigned      = "ticket.assigned"
	TicketStatusChanged = "ticket.status_changed"
)

// Event is published after a successful mutation.  It carries enough
// information for the audit consumer to write a line without reading the
// store.  Zero ids are omitted.
type Event struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id,omitempty"`
	TicketID   uint64 `json:"ticket_id,omitempty"`
	ActorID    uint64 `json:"actor_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ string) Event {
	return Event{Type: typ, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}
