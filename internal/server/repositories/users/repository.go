// Package users declares the credential store contract consumed by the
// authentication service, and its PostgreSQL implementation.
package users

import (
	"context"
	"time"

	"github.com/prashikshan/portal-auth/internal/server/models"
)

// Repository is the credential store. Implementations return
// common.ErrorNotFound for absent users and common.ErrorAlreadyExists for a
// duplicate email; every other error is an infrastructure failure.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// IncrementFailedAttempts atomically bumps the failed login counter and
	// returns the new value.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)

	// ResetFailedAttempts zeroes the counter and clears any lock.
	ResetFailedAttempts(ctx context.Context, id string) error
	SetLockedUntil(ctx context.Context, id string, until time.Time) error

	SetActive(ctx context.Context, id string, active bool) error
	SetVerified(ctx context.Context, id string, verified bool) error
	UpdatePasswordHash(ctx context.Context, id string, hash string) error

	// IncrementTokenVersion invalidates every access token issued so far.
	IncrementTokenVersion(ctx context.Context, id string) (int64, error)
}
