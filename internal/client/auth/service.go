// Package auth управляет сессией клиента: регистрация, вход, выход и
// автоматическое обновление access token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	clientapi "github.com/iudanet/contactsync/internal/client/api"
	"github.com/iudanet/contactsync/internal/client/storage"
	"github.com/iudanet/contactsync/internal/validation"
	"github.com/iudanet/contactsync/pkg/api"
)

// RefreshLeeway за сколько до истечения access token обновляется заранее
const RefreshLeeway = 30 * time.Second

// ErrNotAuthenticated пользователь не выполнил вход или сессия истекла
var ErrNotAuthenticated = errors.New("not authenticated, run 'contactsync login' first")

//go:generate moq -out api_mock.go . APIClient

// APIClient запросы авторизации к серверу
type APIClient interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
}

// Service предоставляет функции авторизации
type Service struct {
	api    APIClient
	store  storage.AuthStorage
	logger *slog.Logger
	now    func() time.Time
}

// NewService создает новый сервис авторизации
func NewService(apiClient APIClient, store storage.AuthStorage, logger *slog.Logger) *Service {
	return &Service{
		api:    apiClient,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Register регистрирует нового пользователя
func (s *Service) Register(ctx context.Context, email, password string) (*api.RegisterResponse, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.api.Register(ctx, api.RegisterRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return resp, nil
}

// Login выполняет вход и сохраняет токены локально
func (s *Service) Login(ctx context.Context, email, password string) error {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	if password == "" {
		return errors.New("password cannot be empty")
	}

	tokens, err := s.api.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	return s.saveTokens(ctx, email, tokens)
}

// Logout отзывает токены на сервере и удаляет локальную сессию.
// Ошибка сервера не мешает локальному выходу.
func (s *Service) Logout(ctx context.Context) error {
	auth, err := s.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("failed to get auth data: %w", err)
	}

	if err := s.api.Logout(ctx, auth.AccessToken); err != nil {
		s.logger.Warn("Server logout failed, removing local session anyway", "error", err)
	}

	if err := s.store.DeleteAuth(ctx); err != nil {
		return fmt.Errorf("failed to delete auth data: %w", err)
	}
	return nil
}

// Current возвращает данные текущей сессии
func (s *Service) Current(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get auth data: %w", err)
	}
	return auth, nil
}

// AccessToken возвращает действующий access token.
// Если токен истекает в пределах RefreshLeeway, пара токенов обновляется.
func (s *Service) AccessToken(ctx context.Context) (string, error) {
	auth, err := s.Current(ctx)
	if err != nil {
		return "", err
	}

	if !auth.Expired(s.now(), RefreshLeeway) {
		return auth.AccessToken, nil
	}

	s.logger.Debug("Access token expired, refreshing")
	tokens, err := s.api.Refresh(ctx, auth.RefreshToken)
	if err != nil {
		if clientapi.IsStatus(err, http.StatusUnauthorized) {
			// Refresh token отозван или истек: сессия больше не действительна
			if delErr := s.store.DeleteAuth(ctx); delErr != nil {
				s.logger.Warn("Failed to delete expired session", "error", delErr)
			}
			return "", fmt.Errorf("session expired: %w", ErrNotAuthenticated)
		}
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := s.saveTokens(ctx, auth.Email, tokens); err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

func (s *Service) saveTokens(ctx context.Context, email string, tokens *api.TokenResponse) error {
	auth := &storage.AuthData{
		Email:        email,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix(),
	}
	if err := s.store.SaveAuth(ctx, auth); err != nil {
		return fmt.Errorf("failed to save auth data: %w", err)
	}
	return nil
}
