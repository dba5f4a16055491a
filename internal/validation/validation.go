package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	pinRegex   = regexp.MustCompile(`^[0-9]{4,8}$`)
)

// MinOverrideReasonLength is the shortest accepted override justification
const MinOverrideReasonLength = 10

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidateName checks if a person's name is valid
func ValidateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: field, Message: "name is required"}
	}
	if utf8.RuneCountInString(name) < 2 {
		return ValidationError{Field: field, Message: "name must be at least 2 characters"}
	}
	if utf8.RuneCountInString(name) > 255 {
		return ValidationError{Field: field, Message: "name must be at most 255 characters"}
	}
	return nil
}

// ValidatePIN checks that a PIN is 4 to 8 digits
func ValidatePIN(pin string) error {
	if pin == "" {
		return ValidationError{Field: "pin", Message: "PIN is required"}
	}
	if !pinRegex.MatchString(pin) {
		return ValidationError{Field: "pin", Message: "PIN must be 4 to 8 digits"}
	}
	return nil
}

// ValidateReason checks an emergency override justification
func ValidateReason(reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinOverrideReasonLength {
		return ValidationError{Field: "reason", Message: fmt.Sprintf("reason must be at least %d characters", MinOverrideReasonLength)}
	}
	return nil
}

// ValidateEventName checks the name of a session
func ValidateEventName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "event_name", Message: "event name is required"}
	}
	if utf8.RuneCountInString(name) > 255 {
		return ValidationError{Field: "event_name", Message: "event name must be at most 255 characters"}
	}
	return nil
}
