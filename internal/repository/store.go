package repository

import (
	"context"
	"time"

	"github.com/helpdeskhq/helpdesk/internal/model"
)

// Store is the single authoritative persistence interface.  Exactly one
// implementation is active per process: FileStore or MySQLStore.
//
// Grants and revokes are idempotent set operations.  List operations
// return newest records first.  Users never carry a plaintext password.
type Store interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, nu model.NewUser) (model.User, error)
	SetPassword(ctx context.Context, id uint64, hash string) error
	SetActive(ctx context.Context, id uint64, active bool) error
	ListUsers(ctx context.Context) ([]model.User, error)

	Roles(ctx context.Context) ([]string, error)
	Permissions(ctx context.Context) ([]string, error)
	UserRoles(ctx context.Context, id uint64) ([]string, error)
	UserPermissions(ctx context.Context, id uint64) ([]string, error)
	EffectivePermissions(ctx context.Context, id uint64) ([]string, error)
	GrantRole(ctx context.Context, id uint64, role string) error
	RevokeRole(ctx context.Context, id uint64, role string) error
	GrantPerm(ctx context.Context, id uint64, code string) error
	RevokePerm(ctx context.Context, id uint64, code string) error

	ListTickets(ctx context.Context) ([]model.Ticket, error)
	CreateTicket(ctx context.Context, nt model.NewTicket) (model.Ticket, error)
	AssignTicket(ctx context.Context, id uint64, assignee *uint64) error
	SetTicketStatus(ctx context.Context, id uint64, status string) error

	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeRefresh(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllRefresh(ctx context.Context, userID uint64) error

	Close() error
}

// SeedAdmin describes the bootstrap administrator created when no user
// data exists.
type SeedAdmin struct {
	FullName     string
	Email        string
	PasswordHash string
}
