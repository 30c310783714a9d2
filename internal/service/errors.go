package service

import "errors"

// Errors returned by the services.  Handlers map them to HTTP statuses;
// repository sentinels (not found, duplicate email) pass through unchanged.
var (
	// ErrInvalidCredentials covers unknown email, inactive account and
	// wrong password alike so a caller cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWrongPassword is returned by ChangePassword when the current
	// password does not verify.
	ErrWrongPassword     = errors.New("current password is incorrect")
	ErrWeakPassword      = errors.New("password must have at least 6 characters")
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrInvalidStatus     = errors.New("invalid ticket status")
	ErrInvalidPriority   = errors.New("invalid ticket priority")
	ErrMissingFields     = errors.New("missing required fields")
	// ErrForbidden is returned when the caller is authenticated but the
	// store-loaded roles do not allow the operation.
	ErrForbidden = errors.New("forbidden")
)
