package models

import "time"

// User представляет пользователя в системе
type User struct {
	LastLogin    *time.Time `json:"last_login,omitempty"` // время последнего входа
	CreatedAt    time.Time  `json:"created_at"`           // время создания
	ID           string     `json:"id"`                   // UUID пользователя
	Email        string     `json:"email"`                // уникальный email (используется как логин)
	PasswordHash string     `json:"-"`                    // bcrypt хеш пароля
}

// RefreshToken представляет refresh token пользователя.
// Сам токен на сервере не хранится, только его SHA256 хеш.
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	TokenHash string    `json:"token_hash"` // SHA256 хеш токена (hex)
	UserID    string    `json:"user_id"`    // ID пользователя
}

// SyncLogEntry запись журнала синхронизаций.
// Используется для аудита: какой checkpoint прислал клиент и какой serverTime ему выдан.
type SyncLogEntry struct {
	Checkpoint    time.Time `json:"checkpoint"`
	ServerTime    time.Time `json:"server_time"`
	UserID        string    `json:"user_id"`
	PulledCount   int       `json:"pulled_count"`
	AppliedCount  int       `json:"applied_count"`
	ConflictCount int       `json:"conflict_count"`
	ErrorCount    int       `json:"error_count"`
	ID            int64     `json:"id"`
}
