// Package apperrors defines the closed set of domain error kinds produced at
// collaborator boundaries (store, payment provider, auth) and consumed by the
// HTTP error classifier.
//
// Every external call wraps its failure into one of these kinds immediately
// at the call site, so the classifier matches on explicit types rather than
// inspecting untyped values structurally.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// FieldError describes a single invalid field in a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every offending field of a request in one error.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d invalid field(s)", len(e.Fields))
}

// NewValidationError builds a ValidationError from field errors.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// ConflictError indicates a uniqueness constraint was violated.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("a record with this %s already exists", e.Field)
	}
	return "a record with this value already exists"
}

// NotFoundError indicates the targeted record does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return "record not found"
}

// ReferenceError indicates a foreign-key reference to a missing record.
type ReferenceError struct {
	Field string
}

func (e *ReferenceError) Error() string {
	return "invalid reference - related record not found"
}

// MalformedError indicates the persistence layer rejected the query or data
// shape itself.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string { return "invalid data format" }
func (e *MalformedError) Unwrap() error { return e.Err }

// AuthError indicates the auth provider flagged the request.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("authentication error: %s", e.Reason)
	}
	return "authentication error"
}

// PaymentCardError carries the provider-supplied card decline message.
type PaymentCardError struct {
	Message string
}

func (e *PaymentCardError) Error() string { return "payment card error: " + e.Message }

// PaymentRequestError indicates the payment provider rejected the request
// as invalid.
type PaymentRequestError struct {
	Message string
}

func (e *PaymentRequestError) Error() string { return "invalid payment request" }

// QuotaExceededError indicates the free-tier quote ceiling was reached.
type QuotaExceededError struct {
	Current int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d quotes used on the free plan", e.Current, e.Limit)
}

// RateLimitError indicates the sliding-window limiter rejected the request.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string { return "rate limit exceeded" }

// StoreError wraps an unclassified persistence failure. Its detail never
// reaches clients.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return "database error occurred" }
func (e *StoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsQuotaExceeded reports whether err is a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
