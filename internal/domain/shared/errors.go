// Package shared holds the identifiers, error kinds and events that every
// domain package depends on.
package shared

import (
	"errors"
	"strings"
)

// Error kinds. Callers classify failures with errors.Is against these.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidID       = errors.New("malformed identifier")
	ErrInvalidInput    = errors.New("malformed input")
	ErrNegativeValue   = errors.New("negative value")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrServiceUnavailable = errors.New("backend unavailable")
	ErrCorruptData        = errors.New("stored data is corrupt")
)

var validationKinds = []error{
	ErrValidation,
	ErrInvalidID,
	ErrInvalidInput,
	ErrNegativeValue,
	ErrValueOutOfRange,
}

// DomainError attaches a kind and a user-facing message to a failure.
// Message is safe to show in chat; Err, when set, is for logs only.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	b.WriteByte('.')
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewDomainError builds a DomainError without an underlying cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return WrapError(domain, op, kind, message, nil)
}

// WrapError builds a DomainError around err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

var (
	ErrStorageUnavailable = NewDomainError("progress", "Store", ErrServiceUnavailable, "progress store unavailable")
	ErrInvalidGuildID     = NewDomainError("progress", "Validate", ErrInvalidID, "invalid guild ID")
	ErrInvalidUserID      = NewDomainError("progress", "Validate", ErrInvalidID, "invalid user ID")
	ErrNegativeExperience = NewDomainError("progress", "Validate", ErrNegativeValue, "experience cannot be negative")
)

// Command rejections. Their messages are sent back to the invoking member.
var (
	ErrPermissionDenied  = NewDomainError("command", "Authorize", ErrForbidden, "only administrators can use this command")
	ErrTargetRequired    = NewDomainError("command", "Validate", ErrInvalidInput, "target user is required")
	ErrAmountRequired    = NewDomainError("command", "Validate", ErrInvalidInput, "amount is required")
	ErrAmountNotInteger  = NewDomainError("command", "Validate", ErrInvalidInput, "amount must be an integer")
	ErrAmountNotPositive = NewDomainError("command", "Validate", ErrValueOutOfRange, "amount must be greater than zero")
	ErrUnknownCommand    = NewDomainError("command", "Route", ErrNotFound, "unknown command")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsValidation reports whether err is any of the input validation kinds.
func IsValidation(err error) bool {
	for _, k := range validationKinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsStorageUnavailable reports a durable storage failure. Callers treat
// it as transient.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}
