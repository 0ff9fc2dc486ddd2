// Package crypto содержит криптографические примитивы сервера:
// хеширование паролей и refresh токенов, генерацию случайных токенов.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// RefreshTokenSize размер случайной части refresh токена в байтах
const RefreshTokenSize = 32

// HashToken хеширует refresh token с использованием SHA256.
// На сервере хранится только хеш, поэтому утечка БД не раскрывает действующие токены.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}

	hash := sha256.Sum256([]byte(token))

	// Возвращаем hex-encoded строку
	return hex.EncodeToString(hash[:]), nil
}

// VerifyToken проверяет, соответствует ли токен сохраненному хешу
func VerifyToken(token, hashedToken string) error {
	if hashedToken == "" {
		return fmt.Errorf("hashed token cannot be empty")
	}

	computed, err := HashToken(token)
	if err != nil {
		return err
	}

	// Сравнение за постоянное время
	if subtle.ConstantTimeCompare([]byte(computed), []byte(hashedToken)) != 1 {
		return fmt.Errorf("invalid token")
	}

	return nil
}

// RandomToken генерирует случайный токен из size байт в URL-safe base64
func RandomToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive")
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
