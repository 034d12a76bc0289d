// Package common defines shared constants and errors used across the
// authentication server. Callers should use errors.Is / errors.As to match
// these values.
package common

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Credential errors. Unknown email and wrong password share one message.
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountLocked       = errors.New("account is locked")
	ErrAccountDeactivated  = errors.New("account has been deactivated")
	ErrEmailAlreadyExists  = errors.New("user with this email already exists")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrForbidden           = errors.New("you do not have permission to access this resource")
	ErrRateLimited         = errors.New("too many requests")
	ErrValidation          = errors.New("validation failed")
	ErrTokenVersionRevoked = errors.New("token has been revoked")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: bad signature", ErrInvalidToken)

	// Token lifecycle errors.
	ErrTokenExpired         = errors.New("token expired")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

// LockedError reports an active lockout together with the time left on it.
type LockedError struct {
	Remaining time.Duration
}

// RemainingMinutes rounds the remaining lock time up to whole minutes, never below one.
func (e *LockedError) RemainingMinutes() int {
	m := int(math.Ceil(e.Remaining.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account is locked, please try again in %d minutes", e.RemainingMinutes())
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field errors for a request payload.
type ValidationError struct {
	Fields []FieldError
}

// Add records a failure for field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
