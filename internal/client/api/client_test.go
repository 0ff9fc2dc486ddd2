package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/contactsync/pkg/api"
)

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	assert.Equal(t, uint64(DefaultSyncRetries), client.syncRetries)
}

// TestClient_Register проверяет успешную регистрацию
func TestClient_Register(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/auth/register", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req api.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice@example.com", req.Email)
		assert.Equal(t, "password-1", req.Password)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.RegisterResponse{UserID: "user-123", Message: "ok"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Register(context.Background(), api.RegisterRequest{
		Email: "alice@example.com", Password: "password-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-123", resp.UserID)
}

// TestClient_ErrorResponses проверяет разбор ошибок сервера
func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		responseBody   string
		name           string
		expectedErrMsg string
		statusCode     int
	}{
		{
			name:           "User already exists",
			statusCode:     http.StatusConflict,
			responseBody:   `{"error":"Conflict","message":"user already exists"}`,
			expectedErrMsg: "server error (409): user already exists",
		},
		{
			name:           "Plain text body",
			statusCode:     http.StatusBadGateway,
			responseBody:   "Bad Gateway",
			expectedErrMsg: "request failed with status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Register(context.Background(), api.RegisterRequest{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErrMsg)
			assert.True(t, IsStatus(err, tt.statusCode))
		})
	}
}

func TestClient_LoginRefreshLogout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			_ = json.NewEncoder(w).Encode(api.TokenResponse{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 900})
		case "/api/v1/auth/refresh":
			assert.Equal(t, "Bearer r1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(api.TokenResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 900})
		case "/api/v1/auth/logout":
			assert.Equal(t, "Bearer a2", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewClient(server.URL)

	tokens, err := client.Login(ctx, api.LoginRequest{Email: "a@b.c", Password: "password-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), tokens.ExpiresIn)

	tokens, err = client.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "a2", tokens.AccessToken)

	require.NoError(t, client.Logout(ctx, tokens.AccessToken))
}

func TestClient_Sync_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	serverTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sync", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Service Unavailable","message":"sync failed, retry later"}`))
			return
		}

		var req api.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contacts, 1)

		_ = json.NewEncoder(w).Encode(api.SyncResponse{ServerTime: serverTime})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSyncRetries(3, time.Millisecond))
	resp, err := client.Sync(context.Background(), "token", &api.SyncRequest{
		Contacts: []api.ContactPayload{{FirstName: "Ada", LastName: "Lovelace"}},
	})
	require.NoError(t, err)
	assert.Equal(t, serverTime, resp.ServerTime)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Sync_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"invalid or expired token"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSyncRetries(3, time.Millisecond))
	_, err := client.Sync(context.Background(), "token", &api.SyncRequest{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Sync_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSyncRetries(2, time.Millisecond))
	_, err := client.Sync(context.Background(), "token", &api.SyncRequest{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FetchRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/contacts/abc", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"abc","firstName":"Ada"}`))
	}))
	defer server.Close()

	raw, err := NewClient(server.URL).FetchRecord(context.Background(), "token", "contacts", "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","firstName":"Ada"}`, string(raw))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err      error
		name     string
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "transport", err: errors.New("connection refused"), expected: true},
		{name: "5xx", err: &StatusError{StatusCode: http.StatusServiceUnavailable}, expected: true},
		{name: "4xx", err: &StatusError{StatusCode: http.StatusBadRequest}, expected: false},
		{name: "canceled", err: context.Canceled, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, retryable(tt.err))
		})
	}
}
