package types

import "errors"

// Rejection kinds. Every operation failure wraps exactly one of these so
// callers can classify outcomes with errors.Is without parsing messages.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrWindowClosed    = errors.New("voting window closed")
	ErrAlreadyRecorded = errors.New("already recorded")
	ErrCapExceeded     = errors.New("delegation cap exceeded")
)
