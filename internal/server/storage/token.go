package storage

import (
	"context"
	"time"

	"github.com/iudanet/contactsync/internal/models"
)

// TokenStorage defines interface for refresh token persistence.
// Tokens are addressed by their SHA256 hash, raw values are never stored.
type TokenStorage interface {
	// SaveRefreshToken stores a new refresh token
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error

	// GetRefreshToken retrieves refresh token by hash
	// Returns ErrTokenNotFound if token doesn't exist
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// DeleteRefreshToken deletes refresh token by hash
	// Returns ErrTokenNotFound if token doesn't exist
	DeleteRefreshToken(ctx context.Context, tokenHash string) error

	// DeleteUserTokens deletes all refresh tokens for a user
	// Returns number of deleted tokens
	DeleteUserTokens(ctx context.Context, userID string) (int, error)

	// DeleteExpiredTokens removes all tokens expired before now
	// Returns number of deleted tokens
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}
