package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/contactsync/internal/clock"
	"github.com/iudanet/contactsync/internal/kinds"
	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/server/storage/memory"
	"github.com/iudanet/contactsync/internal/syncer"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv сервер с хранилищем в памяти и ручными часами
type testEnv struct {
	store *memory.Store
	clock *clock.Manual
	mux   *http.ServeMux
}

func newTestEnv(t *testing.T, opts ...syncer.Option) *testEnv {
	t.Helper()

	logger := setupTestLogger()
	store := memory.New()
	clk := clock.NewManual(testNow)

	reg := syncer.NewRegistry()
	require.NoError(t, kinds.RegisterAll(reg, store))
	coord := syncer.NewCoordinator(store, reg, clk, logger, opts...)

	syncHandler := NewSyncHandler(logger, coord, reg, 0)
	contacts := NewRecordHandler(logger, store, kinds.Contact(store.Contacts()), clk)
	companies := NewRecordHandler(logger, store, kinds.Company(store.Companies()), clk)

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", syncHandler.HandleSync)
	mux.HandleFunc("GET /api/v1/contacts", contacts.List)
	mux.HandleFunc("POST /api/v1/contacts", contacts.Create)
	mux.HandleFunc("GET /api/v1/contacts/{id}", contacts.Get)
	mux.HandleFunc("PUT /api/v1/contacts/{id}", contacts.Update)
	mux.HandleFunc("DELETE /api/v1/contacts/{id}", contacts.Delete)
	mux.HandleFunc("GET /api/v1/companies", companies.List)
	mux.HandleFunc("POST /api/v1/companies", companies.Create)
	mux.HandleFunc("GET /api/v1/companies/{id}", companies.Get)

	return &testEnv{store: store, clock: clk, mux: mux}
}

// do выполняет запрос от имени userID (пустой userID - без аутентификации)
func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(WithPrincipal(req.Context(), userID, userID+"@example.com"))
	}

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedContact(t *testing.T, c *models.Contact) {
	t.Helper()
	ctx := context.Background()

	s, err := e.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, e.store.Contacts().Upsert(ctx, s, c, nil))
	require.NoError(t, s.Commit())
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func ptr[T any](v T) *T {
	return &v
}
