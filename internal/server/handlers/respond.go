package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/contactsync/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// EmailKey ключ для хранения email в контексте
	EmailKey contextKey = "email"
)

// DefaultMaxBodyBytes ограничение размера тела запроса
const DefaultMaxBodyBytes int64 = 8 << 20

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetEmail извлекает email из контекста запроса
func GetEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

// WithPrincipal кладет данные аутентифицированного пользователя в контекст
func WithPrincipal(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, EmailKey, email)
}

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>"
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// readJSON разбирает JSON тело запроса не длиннее limit байт.
// При ошибке сам отправляет ответ (413 при превышении лимита, иначе 400) и возвращает false.
func readJSON(logger *slog.Logger, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, limit)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil {
		return true
	}

	logger.WarnContext(r.Context(), "failed to decode request body",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		sendError(logger, w, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	sendError(logger, w, "invalid request body", http.StatusBadRequest)
	return false
}

// sendJSON отправляет JSON ответ
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	sendJSON(logger, w, resp, statusCode)
}
