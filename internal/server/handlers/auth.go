package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/crypto"
	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/server/jwt"
	"github.com/iudanet/contactsync/internal/server/storage"
	"github.com/iudanet/contactsync/internal/validation"
	"github.com/iudanet/contactsync/pkg/api"
)

// TokenService выпускает и проверяет токены
type TokenService interface {
	GenerateAccessToken(userID, email string) (string, int64, error)
	GenerateRefreshToken() (string, time.Time, error)
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger       *slog.Logger
	userStorage  storage.UserStorage
	tokenStorage storage.TokenStorage
	tokens       TokenService
	now          func() time.Time
	passwordCost int
	maxBodyBytes int64
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, userStorage storage.UserStorage, tokenStorage storage.TokenStorage, tokens TokenService) *AuthHandler {
	return &AuthHandler{
		logger:       logger,
		userStorage:  userStorage,
		tokenStorage: tokenStorage,
		tokens:       tokens,
		now:          time.Now,
		passwordCost: crypto.PasswordCost,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Register обрабатывает POST /api/v1/auth/register
// Регистрация нового пользователя
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Парсим request body
	var req api.RegisterRequest
	if !readJSON(h.logger, w, r, h.maxBodyBytes, &req) {
		return
	}

	if err := validation.ValidateEmail(req.Email); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.createUser(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "user already exists")
			sendError(h.logger, w, "email already registered", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user registered successfully", slog.String("user_id", user.ID))

	resp := api.RegisterResponse{
		UserID:  user.ID,
		Message: "User registered successfully",
	}

	sendJSON(h.logger, w, resp, http.StatusCreated)
}

// CreateUser создает пользователя с уже проверенными email и паролем.
// Используется также для начального администратора при старте сервера.
func (h *AuthHandler) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	return h.createUser(ctx, email, password)
}

func (h *AuthHandler) createUser(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := crypto.HashPasswordWithCost(password, h.passwordCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        validation.NormalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    h.now().UTC(),
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login обрабатывает POST /api/v1/auth/login
// Аутентификация пользователя
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Парсим request body
	var req api.LoginRequest
	if !readJSON(h.logger, w, r, h.maxBodyBytes, &req) {
		return
	}

	// Проверка обязательных полей
	if req.Email == "" || req.Password == "" {
		sendError(h.logger, w, "email and password are required", http.StatusBadRequest)
		return
	}

	// Получаем пользователя из БД
	user, err := h.userStorage.GetUserByEmail(ctx, validation.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.WarnContext(ctx, "login failed: user not found")
			sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := crypto.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("user_id", user.ID))
			sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to verify password", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp, err := h.issueTokens(ctx, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Обновляем last_login
	if err := h.userStorage.UpdateLastLogin(ctx, user.ID, h.now().UTC()); err != nil {
		// Не критичная ошибка, логируем но не прерываем
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "user logged in successfully", slog.String("user_id", user.ID))

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Refresh обрабатывает POST /api/v1/auth/refresh
// Обновление пары токенов по refresh token (старый токен отзывается)
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Извлекаем refresh token из Authorization header
	refreshToken, ok := BearerToken(r)
	if !ok {
		sendError(h.logger, w, "refresh token is required", http.StatusUnauthorized)
		return
	}

	tokenHash, err := crypto.HashToken(refreshToken)
	if err != nil {
		sendError(h.logger, w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	// Проверяем refresh token в БД
	storedToken, err := h.tokenStorage.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			h.logger.WarnContext(ctx, "refresh token not found")
			sendError(h.logger, w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get refresh token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Токен одноразовый: удаляем до выдачи новой пары
	if err := h.tokenStorage.DeleteRefreshToken(ctx, tokenHash); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
		h.logger.ErrorContext(ctx, "failed to delete old refresh token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Проверяем срок действия
	if h.now().After(storedToken.ExpiresAt) {
		h.logger.WarnContext(ctx, "refresh token expired", slog.String("user_id", storedToken.UserID))
		sendError(h.logger, w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	// Получаем пользователя для генерации нового access token
	user, err := h.userStorage.GetUserByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			sendError(h.logger, w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp, err := h.issueTokens(ctx, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "tokens refreshed successfully", slog.String("user_id", user.ID))

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Logout обрабатывает POST /api/v1/auth/logout
// Выход пользователя: отзываются все refresh токены
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accessToken, ok := BearerToken(r)
	if !ok {
		sendError(h.logger, w, "access token is required", http.StatusUnauthorized)
		return
	}

	// Валидируем и парсим access token
	claims, err := h.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid access token", slog.Any("error", err))
		sendError(h.logger, w, "invalid or expired access token", http.StatusUnauthorized)
		return
	}

	// Удаляем все refresh tokens пользователя
	deletedCount, err := h.tokenStorage.DeleteUserTokens(ctx, claims.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to delete user tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user logged out successfully",
		slog.String("user_id", claims.UserID),
		slog.Int("tokens_deleted", deletedCount))

	w.WriteHeader(http.StatusNoContent)
}

// issueTokens выпускает новую пару токенов и сохраняет хеш refresh токена
func (h *AuthHandler) issueTokens(ctx context.Context, user *models.User) (*api.TokenResponse, error) {
	accessToken, expiresIn, err := h.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	refreshToken, expiresAt, err := h.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	tokenHash, err := crypto.HashToken(refreshToken)
	if err != nil {
		return nil, err
	}

	token := &models.RefreshToken{
		TokenHash: tokenHash,
		UserID:    user.ID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: h.now().UTC(),
	}
	if err := h.tokenStorage.SaveRefreshToken(ctx, token); err != nil {
		return nil, err
	}

	return &api.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}
