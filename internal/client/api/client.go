// Package api реализует HTTP клиент сервера contactsync.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/contactsync/pkg/api"
)

// Настройки повторов синхронизации
const (
	DefaultSyncRetries     = 3
	DefaultSyncBackoffBase = 200 * time.Millisecond
)

// StatusError ответ сервера с кодом не 2xx
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus сообщает, является ли err ответом сервера с указанным кодом
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient  *http.Client
	baseURL     string
	syncRetries uint64
	backoffBase time.Duration
}

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient задает http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSyncRetries задает число повторов синхронизации и базовую задержку
func WithSyncRetries(retries uint64, base time.Duration) Option {
	return func(c *Client) {
		c.syncRetries = retries
		c.backoffBase = base
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		syncRetries: DefaultSyncRetries,
		backoffBase: DefaultSyncBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", "", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обменивает refresh token на новую пару токенов
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/refresh", refreshToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	return &resp, nil
}

// Logout отзывает все refresh токены пользователя
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Sync отправляет локальные изменения и получает серверные.
// Запрос идемпотентен, поэтому сетевые ошибки и ответы 5xx повторяются с
// экспоненциальной задержкой.
func (c *Client) Sync(ctx context.Context, accessToken string, req *api.SyncRequest) (*api.SyncResponse, error) {
	var resp api.SyncResponse

	backoff := retry.WithMaxRetries(c.syncRetries, retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp = api.SyncResponse{}
		err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync", accessToken, req, &resp)
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	return &resp, nil
}

// FetchRecord получает текущую серверную версию записи.
// collection - имя коллекции ("contacts" или "companies").
func (c *Client) FetchRecord(ctx context.Context, accessToken, collection, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := "/api/v1/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch %s/%s failed: %w", collection, id, err)
	}
	return raw, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", "", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// retryable ошибки транспорта и 5xx; 4xx и отмена контекста не повторяются
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			se.Message = errResp.Message
		}
		return se
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
