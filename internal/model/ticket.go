package model

import "time"

// Ticket statuses.  Open -> In progress -> Closed; no transition is
// forbidden, a closed ticket may still be reassigned or reopened.
const (
	StatusOpen       = "Aberto"
	StatusInProgress = "Em andamento"
	StatusClosed     = "Fechado"
)

// Ticket priorities.  New tickets default to PriorityMedium.
const (
	PriorityLow    = "Baixa"
	PriorityMedium = "Média"
	PriorityHigh   = "Alta"
)

// Ticket is a support request opened by a user.
//
// Fields:
//  ID          – sequential identifier.
//  Subject     – short summary (required).
//  Description – free text, may be empty.
//  OpenedBy    – user who opened the ticket.
//  AssignedTo  – agent currently responsible, nil when unassigned.
//  Status      – one of the Status* constants.
//  Priority    – one of the Priority* constants.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last mutation timestamp.
type Ticket struct {
	ID          uint64    `json:"ticket_id"`   // tickets.ticket_id
	Subject     string    `json:"subject"`     // tickets.subject
	Description string    `json:"description"` // tickets.description
	OpenedBy    uint64    `json:"opened_by"`   // tickets.opened_by
	AssignedTo  *uint64   `json:"assigned_to"` // tickets.assigned_to (nullable)
	Status      string    `json:"status"`      // tickets.status
	Priority    string    `json:"priority"`    // tickets.priority
	CreatedAt   time.Time `json:"created_at"`  // tickets.opened_at
	UpdatedAt   time.Time `json:"updated_at"`  // tickets.updated_at
}

// NewTicket carries the fields needed to open a ticket.
type NewTicket struct {
	Subject     string
	Description string
	OpenedBy    uint64
	Priority    string
}

// IsStatus reports whether s is a known ticket status.
func IsStatus(s string) bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusClosed
}

// IsPriority reports whether p is a known ticket priority.
func IsPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}
