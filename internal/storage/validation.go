// Package storage provides the persistence backends for ledger state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/Veraticus/the-budget-must-balance/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidNamespace = errors.New("invalid namespace")
	ErrInvalidTag       = errors.New("invalid checkpoint tag")
)

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9@._+-]{1,128}$`)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateNamespace ensures a namespace is safe to use as a key and a file name.
func validateNamespace(namespace string) error {
	if !safeNamePattern.MatchString(namespace) || strings.Contains(namespace, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	return nil
}

// validateTag ensures a checkpoint tag cannot escape the checkpoints directory.
func validateTag(tag string) error {
	if !safeNamePattern.MatchString(tag) || strings.Contains(tag, "..") {
		return fmt.Errorf("%w: %q may only contain letters, digits and @._+-", ErrInvalidTag, tag)
	}
	return nil
}

// validateState ensures a state is present before it is written.
func validateState(state *model.LedgerState) error {
	if state == nil {
		return fmt.Errorf("%w: state", ErrNilParameter)
	}
	return nil
}

// validateSaveArgs runs the checks shared by every Save implementation.
func validateSaveArgs(ctx context.Context, namespace string, state *model.LedgerState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	return validateState(state)
}

// conflictError reports a save made against a revision that is no longer current.
func conflictError(namespace string, expected, current int64) error {
	return fmt.Errorf("%w: %w: ledger %q is at revision %d, the save expected %d",
		common.ErrPersistence, common.ErrConflict, namespace, current, expected)
}
