package model

import (
	"errors"
	"fmt"
)

// Code is a machine-readable reason for a rejected operation. Callers use
// codes for user messaging; none of these is retried inside the engine.
type Code string

const (
	CodeSlotConflict        Code = "slot_conflict"
	CodeSlotNotRequestable  Code = "slot_not_requestable"
	CodeCancellationBlocked Code = "cancellation_blocked"
	CodeRescheduleBlocked   Code = "reschedule_blocked"
	CodeAlreadyRescheduled  Code = "already_rescheduled"
	CodeInvalidTransition   Code = "invalid_transition"
	CodeCancelledLocked     Code = "cancelled_locked"
	CodeBeforeScheduled     Code = "cannot_before_scheduled"
	CodeMalformedInput      Code = "malformed_input"
	CodeNotFound            Code = "not_found"
)

type Error struct {
	Code   Code
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func codeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConflict reports a slot already occupied; recoverable by re-querying
// availability and picking a different slot.
func IsConflict(err error) bool {
	return codeOf(err) == CodeSlotConflict
}

// IsPolicy reports a lead-time, horizon, or notice threshold violation.
func IsPolicy(err error) bool {
	switch codeOf(err) {
	case CodeSlotNotRequestable, CodeCancellationBlocked, CodeRescheduleBlocked, CodeAlreadyRescheduled:
		return true
	}
	return false
}

// IsTransition reports a state-machine violation.
func IsTransition(err error) bool {
	switch codeOf(err) {
	case CodeInvalidTransition, CodeCancelledLocked, CodeBeforeScheduled:
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	return codeOf(err) == CodeNotFound
}

func IsMalformed(err error) bool {
	return codeOf(err) == CodeMalformedInput
}
