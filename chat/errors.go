package chat

import (
	"errors"
	"fmt"

	"github.com/h-like/sleeprism-chat/databases"
)

// Error kinds returned by the chat services. Callers classify with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrPermission      = errors.New("permission denied")
	ErrInvalidState    = errors.New("invalid state")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Kind names the error class for wire payloads
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	}
	return "internal"
}

// Reason is the text safe to show a client. Unclassified errors are hidden.
func Reason(err error) string {
	if Kind(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}

// notFound converts a store miss into ErrNotFound and wraps anything else
func notFound(err error, what string, id uint) error {
	if errors.Is(err, databases.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}
