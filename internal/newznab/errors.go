// SPDX-License-Identifier: MIT

package newznab

import (
	"errors"
	"fmt"
)

// Kind classifies indexer failures for retry policy decisions.
type Kind string

const (
	KindAuthRejected Kind = "auth-rejected"
	KindRateLimited  Kind = "rate-limited"
	KindUnavailable  Kind = "unavailable"
	KindBadRequest   Kind = "bad-request"
	KindParse        Kind = "parse"
)

// Error is a classified indexer failure.
type Error struct {
	Kind    Kind
	Indexer string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("newznab: %s: %s", e.Indexer, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying. BadRequest and
// Parse are deterministic and are not.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable indexer failure.
func IsRetryable(err error) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Retryable()
}
