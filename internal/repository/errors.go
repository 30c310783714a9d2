// Package repository defines the authoritative store for users, role and
// permission assignments, tickets and refresh tokens, together with the
// sentinel errors shared by its implementations.  Handlers translate
// these sentinels into HTTP status codes.
package repository

import "errors"

// ErrNotFound is the parent of every "no such record" error, so callers
// that do not care which entity was missing can test for it alone.
var ErrNotFound = errors.New("not found")

// ErrUserNotFound is returned when no user has the requested id or email.
var ErrUserNotFound = notFound("user not found")

// ErrTicketNotFound is returned when no ticket has the requested id.
var ErrTicketNotFound = notFound("ticket not found")

// ErrEmailExists is returned by CreateUser when the email is already
// registered, compared case-insensitively.  Handlers translate this
// into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrInactive is returned when an operation requires an active account
// and the user has been deactivated.
var ErrInactive = errors.New("user inactive")

// ErrInvalidToken is returned when a refresh token is unknown, expired
// or revoked.
var ErrInvalidToken = errors.New("invalid refresh token")

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }
