package handlers

// Error codes returned in JSON error bodies
const (
	CodeAlreadyCheckedIn  = "already_checked_in"
	CodeClassroomFull     = "classroom_full"
	CodeInactiveClassroom = "inactive_classroom"
	CodeUnknownOrClosed   = "unknown_or_already_closed"
	CodeNotAuthorized     = "not_authorized"
	CodeInvalidPIN        = "invalid_pin"
	CodeGrantExpiredUsed  = "grant_expired_or_used"
	CodeForbidden         = "override_forbidden"
	CodeTooManyAttempts   = "too_many_attempts"
	CodeNotFound          = "not_found"
	CodeInvalidState      = "invalid_state"
	CodeConflict          = "conflict"
	CodeValidation        = "validation"
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal"

	ErrInvalidJSON         = "Invalid request body"
	ErrUnauthorized        = "Unauthorized"
	ErrInternalServerError = "Internal server error"

	maxBodyBytes = 1 << 20
)
