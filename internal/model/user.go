package model

import "time"

// User represents an account as kept by the store.  The password is
// only ever held as a bcrypt hash; PasswordHash carries a "-" json tag
// so a User can never leak it through an HTTP response.
//
// Fields:
//  ID           – unique, monotonically assigned identifier.
//  FullName     – display name.
//  Email        – unique address, compared case-insensitively.
//  PasswordHash – bcrypt hash of the password.
//  IsActive     – inactive accounts cannot log in.
//  CreatedAt    – creation timestamp.
type User struct {
	ID           uint64    `json:"user_id"`    // users.user_id
	FullName     string    `json:"full_name"`  // users.full_name
	Email        string    `json:"email"`      // users.email
	PasswordHash string    `json:"-"`          // users.password_hash
	IsActive     bool      `json:"is_active"`  // users.is_active
	CreatedAt    time.Time `json:"created_at"` // users.created_at
}

// NewUser carries the fields needed to create an account.  Role is the
// initial role name; an empty value means RoleUser.
type NewUser struct {
	FullName     string
	Email        string
	PasswordHash string
	Role         string
}

// RefreshToken models a long-lived session token.  Only the SHA-256
// hash of the raw token is stored.
//
// Fields:
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp.
//  Revoked   – set once the token is used for rotation or logout.
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	UserID    uint64    `json:"user_id"`    // refresh_tokens.user_id
	TokenHash string    `json:"token_hash"` // refresh_tokens.token_hash
	ExpiresAt time.Time `json:"expires_at"` // refresh_tokens.expires_at
	Revoked   bool      `json:"revoked"`    // refresh_tokens.revoked_at IS NOT NULL
	CreatedAt time.Time `json:"created_at"` // refresh_tokens.created_at
}
