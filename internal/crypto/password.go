package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch indicates that password does not match the hash
var ErrPasswordMismatch = errors.New("password does not match")

// PasswordCost стоимость bcrypt
const PasswordCost = bcrypt.DefaultCost

// HashPassword хеширует пароль с использованием bcrypt
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, PasswordCost)
}

// HashPasswordWithCost хеширует пароль с заданной стоимостью.
// В тестах используется bcrypt.MinCost
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword проверяет пароль по bcrypt хешу.
// Returns ErrPasswordMismatch if password is wrong
func VerifyPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return fmt.Errorf("failed to verify password: %w", err)
}
