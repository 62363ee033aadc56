// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Ledger errors.
var (
	// Caller errors.
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrDuplicateName    = errors.New("duplicate category name")
	ErrCategoryNotFound = errors.New("category not found")

	// State errors.
	ErrCorruptState       = errors.New("corrupt ledger state")
	ErrPersistence        = errors.New("failed to persist ledger state")
	ErrConflict           = errors.New("ledger was changed concurrently")
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// Describe returns a short human explanation for a ledger error.
// Errors outside the ledger taxonomy are described by their own text.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateName):
		return "a category with that name already exists"
	case errors.Is(err, ErrCategoryNotFound):
		return "the selected category does not exist"
	case errors.Is(err, ErrNotFound):
		return "nothing with that id exists"
	case errors.Is(err, ErrInvalidInput):
		return "please check the values you entered"
	case errors.Is(err, ErrCorruptState):
		return "the stored ledger could not be read"
	case errors.Is(err, ErrConflict):
		return "the ledger was changed by another session; nothing was changed, run the command again"
	case errors.Is(err, ErrPersistence):
		return "the ledger could not be saved; nothing was changed"
	case errors.Is(err, ErrInvariantViolation):
		return "internal consistency check failed; nothing was changed"
	default:
		return err.Error()
	}
}
