package service

import "errors"

// Custody errors surfaced to staff clients. None are retried by the engine.
var (
	ErrAlreadyCheckedIn       = errors.New("child is already checked in")
	ErrClassroomFull          = errors.New("classroom is full")
	ErrInactiveClassroom      = errors.New("classroom is not active")
	ErrUnknownOrAlreadyClosed = errors.New("custody record unknown or already closed")
	ErrNotAuthorized          = errors.New("person is not authorized to collect this child")
	ErrInvalidPIN             = errors.New("invalid PIN")
	ErrGrantExpiredOrUsed     = errors.New("pickup authorization expired or already used")
	ErrOverrideForbidden      = errors.New("actor may not perform this privileged operation")
	ErrTooManyAttempts        = errors.New("too many failed PIN attempts, ask a leader")
)

// Lookup errors
var (
	ErrCustodyNotFound          = errors.New("no open custody record found")
	ErrClassroomNotFound        = errors.New("classroom not found")
	ErrChildNotFound            = errors.New("child not found")
	ErrGuardianNotFound         = errors.New("guardian not found")
	ErrAuthorizedPickupNotFound = errors.New("authorized pickup not found")
	ErrGrantNotFound            = errors.New("pickup authorization not found")
	ErrInvalidGrantState        = errors.New("pickup authorization is not in a state that allows this change")
	ErrAlreadyLinked            = errors.New("guardian is already linked to this child")
)

// reasonOf returns a short label for metrics
func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, ErrClassroomFull):
		return "classroom_full"
	case errors.Is(err, ErrInactiveClassroom):
		return "inactive_classroom"
	case errors.Is(err, ErrUnknownOrAlreadyClosed):
		return "unknown_or_closed"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrInvalidPIN):
		return "invalid_pin"
	case errors.Is(err, ErrGrantExpiredOrUsed):
		return "grant_expired_or_used"
	case errors.Is(err, ErrOverrideForbidden):
		return "forbidden"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrClassroomNotFound), errors.Is(err, ErrChildNotFound):
		return "not_found"
	}
	return "error"
}
