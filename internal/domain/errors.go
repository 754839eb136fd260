package domain

import (
	"errors"
	"fmt"
)

// Reason narrows a ConflictError down to the rule that rejected the call.
type Reason string

const (
	ReasonAlreadyBooked   Reason = "ALREADY_BOOKED"
	ReasonOnHold          Reason = "ON_HOLD"
	ReasonVersionMismatch Reason = "VERSION_MISMATCH"
	ReasonRequestInFlight Reason = "REQUEST_IN_FLIGHT"
	ReasonPreviousFailure Reason = "PREVIOUS_FAILURE"
	ReasonPayloadMismatch Reason = "PAYLOAD_MISMATCH"
	ReasonLockUnavailable Reason = "LOCK_UNAVAILABLE"
	ReasonDuplicateKey    Reason = "DUPLICATE_KEY"
)

type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e NotFoundError) Error() string {
	switch {
	case e.Resource != "" && e.ID != "":
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	case e.Resource != "":
		return fmt.Sprintf("%s not found", e.Resource)
	default:
		return "not found"
	}
}

func (e NotFoundError) Unwrap() error { return e.Err }

// ValidationError is a caller error. Fields holds per-field messages when the
// failure came from struct validation.
type ValidationError struct {
	Field  string
	Msg    string
	Fields map[string]string
	Err    error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// ConflictError is terminal for the call. Callers may retry with a new
// idempotency key where the reason allows it.
type ConflictError struct {
	Resource string
	Reason   Reason
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "" && e.Reason != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("conflict: %s", e.Reason)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

// InternalError signals a broken invariant. It is never swallowed.
type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}

// ConflictReason returns the reason of the first ConflictError in err's chain.
func ConflictReason(err error) (Reason, bool) {
	var target ConflictError
	if errors.As(err, &target) {
		return target.Reason, true
	}
	return "", false
}

// HasReason reports whether err is a ConflictError with the given reason.
func HasReason(err error, reason Reason) bool {
	r, ok := ConflictReason(err)
	return ok && r == reason
}
