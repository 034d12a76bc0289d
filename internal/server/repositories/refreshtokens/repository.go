// Package refreshtokens declares the store of issued refresh tokens and its
// PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/prashikshan/portal-auth/internal/server/models"
)

// Repository persists refresh tokens. A token is usable only while its row
// exists and has not expired.
type Repository interface {
	// Create stores token for userID, valid until expiresAt.
	Create(ctx context.Context, userID string, token string, expiresAt time.Time) error

	// Find returns common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes one token. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error

	// Consume removes token and returns common.ErrorNotFound when no row was
	// removed, so only one caller can redeem a token for rotation.
	Consume(ctx context.Context, token string) error

	// DeleteByUser removes every token of userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes tokens whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
