package memory

import (
	"context"
	"time"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/server/storage"
)

// CreateUser creates a new user in the storage
func (st *Store) CreateUser(_ context.Context, user *models.User) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, u := range st.users {
		if u.Email == user.Email {
			return storage.ErrUserAlreadyExists
		}
	}
	cp := *user
	st.users[user.ID] = &cp
	return nil
}

// GetUserByEmail retrieves user by email
func (st *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, u := range st.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

// GetUserByID retrieves user by ID
func (st *Store) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	u, ok := st.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// UpdateLastLogin updates the last login timestamp
func (st *Store) UpdateLastLogin(_ context.Context, userID string, lastLogin time.Time) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	u, ok := st.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.LastLogin = &lastLogin
	return nil
}

// SaveRefreshToken stores a new refresh token
func (st *Store) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	cp := *token
	st.tokens[token.TokenHash] = &cp
	return nil
}

// GetRefreshToken retrieves refresh token by hash
func (st *Store) GetRefreshToken(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	t, ok := st.tokens[tokenHash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

// DeleteRefreshToken deletes refresh token by hash
func (st *Store) DeleteRefreshToken(_ context.Context, tokenHash string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.tokens[tokenHash]; !ok {
		return storage.ErrTokenNotFound
	}
	delete(st.tokens, tokenHash)
	return nil
}

// DeleteUserTokens deletes all refresh tokens for a user
func (st *Store) DeleteUserTokens(_ context.Context, userID string) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	deleted := 0
	for hash, t := range st.tokens {
		if t.UserID == userID {
			delete(st.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteExpiredTokens removes all tokens expired before now
func (st *Store) DeleteExpiredTokens(_ context.Context, now time.Time) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	deleted := 0
	for hash, t := range st.tokens {
		if t.ExpiresAt.Before(now) {
			delete(st.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}
