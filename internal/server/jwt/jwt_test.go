package jwt

import (
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AccessToken(t *testing.T) {
	svc := NewService("test-secret", 15*time.Minute, 24*time.Hour)

	token, expiresIn, err := svc.GenerateAccessToken("user-123", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(900), expiresIn)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestService_ValidateAccessToken(t *testing.T) {
	svc := NewService("test-secret", 15*time.Minute, 24*time.Hour)
	valid, _, err := svc.GenerateAccessToken("user-123", "alice@example.com")
	require.NoError(t, err)

	expiredSvc := NewService("test-secret", 15*time.Minute, 24*time.Hour)
	expiredSvc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredSvc.GenerateAccessToken("user-123", "alice@example.com")
	require.NoError(t, err)

	otherSecret, _, err := NewService("other-secret", time.Minute, time.Hour).
		GenerateAccessToken("user-123", "alice@example.com")
	require.NoError(t, err)

	noneToken, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{UserID: "user-123"}).
		SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid token", token: valid},
		{name: "expired token", token: expired, wantErr: true},
		{name: "wrong secret", token: otherSecret, wantErr: true},
		{name: "alg none", token: noneToken, wantErr: true},
		{name: "garbage", token: "not.a.token", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.ValidateAccessToken(tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidToken)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, claims)
		})
	}
}

func TestService_GenerateRefreshToken(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService("test-secret", time.Minute, 24*time.Hour)
	svc.now = func() time.Time { return fixed }

	a, expiresAt, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(24*time.Hour), expiresAt)

	b, _, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
