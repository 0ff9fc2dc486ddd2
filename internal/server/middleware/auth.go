package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/contactsync/internal/server/handlers"
	"github.com/iudanet/contactsync/internal/server/jwt"
	"github.com/iudanet/contactsync/pkg/api"
)

// TokenValidator проверяет access токен
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware создает middleware для проверки JWT токена.
// При успехе кладет user_id и email в контекст запроса, иначе отвечает 401.
func AuthMiddleware(logger *slog.Logger, tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization
			if r.Header.Get("Authorization") == "" {
				logger.WarnContext(r.Context(), "missing Authorization header", slog.String("path", r.URL.Path))
				unauthorized(w, "missing token")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			tokenString, ok := handlers.BearerToken(r)
			if !ok {
				logger.WarnContext(r.Context(), "invalid Authorization header format")
				unauthorized(w, "invalid token format")
				return
			}

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid access token", slog.Any("error", err))
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx := handlers.WithPrincipal(r.Context(), claims.UserID, claims.Email)

			logger.DebugContext(ctx, "user authenticated", slog.String("user_id", claims.UserID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="contactsync"`)
	writeError(w, http.StatusUnauthorized, message)
}

// writeError пишет JSON ошибку без зависимости от логгера
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: http.StatusText(status), Message: message})
}
