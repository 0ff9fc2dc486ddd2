package validation

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// MaxEmailLen максимальная длина email
	MaxEmailLen = 254
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxPasswordLen ограничение bcrypt
	MaxPasswordLen = 72
)

// ValidateEmail проверяет email, используемый как логин
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}

	if err := get().Var(email, "email"); err != nil {
		return fmt.Errorf("email must be a valid email address")
	}

	return nil
}

// NormalizeEmail приводит email к каноничному виду для поиска пользователя
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword проверяет минимальные требования к паролю
// Минимум 8 символов, хотя бы одна буква и одна цифра
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain at least one letter and one digit")
	}

	return nil
}
