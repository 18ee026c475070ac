package moderation

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services. Callers match them with errors.Is.
var (
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidTarget  = errors.New("invalid report target")
	ErrValidation     = errors.New("validation failed")
	ErrAlreadyDefault = errors.New("account already has the default role")
	ErrSelfBlock      = errors.New("cannot block yourself")
	ErrConflict       = errors.New("conflict")
	ErrRateLimited    = errors.New("rate limited")
	ErrStorage        = errors.New("storage error")
)

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// storageErr wraps an unexpected store failure so it matches ErrStorage
// while keeping the driver error in the chain. Domain errors pass through.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrForbidden, ErrNotFound, ErrAlreadyDefault, ErrConflict, ErrSelfBlock,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Kind returns the stable machine-readable name of err's kind, used by
// clients to localize messages.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrAlreadyDefault):
		return "already_default"
	case errors.Is(err, ErrSelfBlock):
		return "self_block"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "storage_error"
	}
}
