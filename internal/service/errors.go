// SPDX-License-Identifier: MIT

package service

import (
	"errors"
	"fmt"
)

// ValidationError reports bad operator input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// StateConflictError reports a forbidden lifecycle transition.
type StateConflictError struct {
	Msg string
}

func (e *StateConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...any) error {
	return &StateConflictError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is operator-input related.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStateConflict reports whether err is a forbidden transition.
func IsStateConflict(err error) bool {
	var se *StateConflictError
	return errors.As(err, &se)
}
