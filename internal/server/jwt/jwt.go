// Package jwt выпускает и проверяет access токены (HS256) и генерирует refresh токены.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/contactsync/internal/crypto"
)

// Issuer значение claim iss
const Issuer = "contactsync"

// ErrInvalidToken возвращается для любого непригодного access токена
var ErrInvalidToken = errors.New("invalid token")

// Claims представляет JWT claims access токена
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Service provides JWT token generation and validation
type Service struct {
	now             func() time.Time
	secret          []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewService creates a new JWT service
// secret should be a cryptographically secure random string
func NewService(secret string, accessTokenTTL, refreshTokenTTL time.Duration) *Service {
	return &Service{
		now:             time.Now,
		secret:          []byte(secret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// AccessTokenTTL время жизни access токена
func (s *Service) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

// GenerateAccessToken creates a new JWT access token.
// Возвращает токен и срок его жизни в секундах.
func (s *Service) GenerateAccessToken(userID, email string) (string, int64, error) {
	now := s.now()

	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, int64(s.accessTokenTTL.Seconds()), nil
}

// GenerateRefreshToken creates a new random refresh token
func (s *Service) GenerateRefreshToken() (string, time.Time, error) {
	token, err := crypto.RandomToken(crypto.RefreshTokenSize)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, s.now().Add(s.refreshTokenTTL), nil
}

// ValidateAccessToken validates and parses JWT access token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
