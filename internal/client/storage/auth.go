package storage

import (
	"context"
	"time"
)

// AuthStorage defines interface for storing authentication data on client
type AuthStorage interface {
	// SaveAuth stores authentication data, replacing the previous one
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	// Returns ErrAuthNotFound if no auth data exists
	DeleteAuth(ctx context.Context) error
}

// AuthData represents authentication information in storage
type AuthData struct {
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix время истечения access token
}

// Expired сообщает, истекает ли access token раньше now+leeway
func (a *AuthData) Expired(now time.Time, leeway time.Duration) bool {
	return !now.Add(leeway).Before(time.Unix(a.ExpiresAt, 0))
}
