package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing input. The message names the
// violated constraint and is safe to return to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError covers both a missing and an incorrect admin credential.
// The two cases are deliberately indistinguishable to the caller.
type AuthorizationError struct{}

func (e *AuthorizationError) Error() string {
	return "unauthorized"
}

func Unauthorized() error {
	return &AuthorizationError{}
}

type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

func NotFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

// ConflictError reports a uniqueness violation. ExistingStatus carries the
// current status of the conflicting record so the caller can explain the
// conflict to the end user.
type ConflictError struct {
	Message        string
	ExistingStatus string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func Conflict(message, existingStatus string) error {
	return &ConflictError{Message: message, ExistingStatus: existingStatus}
}

// UpstreamError wraps a dependency failure. The cause is logged server-side
// and never leaks to the caller; the HTTP layer renders a generic 500.
type UpstreamError struct {
	Op    string
	Cause error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

func Upstream(op string, cause error) error {
	return &UpstreamError{Op: op, Cause: cause}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
