package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for the transport layer.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

// Error is the error type returned by every service operation.
// Two Errors match under errors.Is when their codes are equal, so a sentinel with a
// generic message still matches a copy carrying a more specific one.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// withMessage returns a copy of e with a different human-readable message.
func (e *Error) withMessage(format string, args ...interface{}) *Error {
	out := *e
	out.Message = fmt.Sprintf(format, args...)
	return &out
}

// KindOf extracts the Kind of err; anything that is not a service Error is internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// PublicMessage is the message safe to hand to a client.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Kind != KindInternal {
		return se.Message
	}
	return "internal server error"
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func invalidInput(format string, args ...interface{}) *Error {
	return ErrInvalidInput.withMessage(format, args...)
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "internal error", Err: err}
}

// --- Error Definitions ---
var (
	ErrInvalidInput = newError(KindInvalidInput, "invalid_input", "invalid input")
	ErrForbidden    = newError(KindForbidden, "forbidden", "forbidden")

	ErrTermNotFound    = newError(KindNotFound, "term_not_found", "term not found")
	ErrBookingNotFound = newError(KindNotFound, "booking_not_found", "active booking not found")
	ErrUserNotFound    = newError(KindNotFound, "user_not_found", "user not found")

	ErrTermOverlap          = newError(KindConflict, "term_overlap", "term overlaps existing term")
	ErrTermNotJoinable      = newError(KindConflict, "term_not_joinable", "term not joinable")
	ErrTermNotScheduled     = newError(KindConflict, "term_not_scheduled", "term is not scheduled")
	ErrTermFull             = newError(KindConflict, "term_full", "term is full")
	ErrWeeklyLimit          = newError(KindConflict, "weekly_limit", "weekly limit reached")
	ErrWeeklyLimitOnMove    = newError(KindConflict, "weekly_limit_on_move", "moving the term would put a member over the weekly limit")
	ErrAlreadyBooked        = newError(KindConflict, "already_booked", "already booked")
	ErrAwaitingReactivation = newError(KindConflict, "term_cancelled", "term is cancelled, wait for reactivation")
	ErrBookingNotRestorable = newError(KindConflict, "booking_not_restorable", "booking was not cancelled by staff")
	ErrCapacityBelowBooked  = newError(KindConflict, "capacity_below_booked", "capacity is below the number of active bookings")
	ErrConcurrentUpdate     = newError(KindConflict, "concurrent_update", "term was changed by another request")
	ErrOwnAdminRole         = newError(KindConflict, "own_admin_role", "you cannot remove your own admin role")
)
