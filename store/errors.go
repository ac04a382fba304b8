package store

import "errors"

// Sentinel errors shared by every store. Handlers translate these to HTTP
// statuses at the boundary; nothing below the boundary writes status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
)
