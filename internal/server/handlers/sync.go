package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/syncer"
	"github.com/iudanet/contactsync/pkg/api"
)

// lastSyncKey ключ checkpoint в теле запроса
const lastSyncKey = "lastSync"

// SyncExecutor выполняет один вызов синхронизации
type SyncExecutor interface {
	Execute(ctx context.Context, principal string, req syncer.Request) (*syncer.Response, error)
}

// CollectionSet знает, какие коллекции зарегистрированы
type CollectionSet interface {
	HasCollection(collection string) bool
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	logger       *slog.Logger
	executor     SyncExecutor
	collections  CollectionSet
	maxBodyBytes int64
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, executor SyncExecutor, collections CollectionSet, maxBodyBytes int64) *SyncHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &SyncHandler{
		logger:       logger,
		executor:     executor,
		collections:  collections,
		maxBodyBytes: maxBodyBytes,
	}
}

// HandleSync обрабатывает POST /sync
// Принимает локальные изменения клиента и возвращает изменения сервера с lastSync
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Получаем user_id из контекста (установлен AuthMiddleware)
	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user ID not found in context")
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Method != http.MethodPost {
		sendError(h.logger, w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.decodeRequest(w, r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.logger.WarnContext(ctx, "sync request body too large", slog.Int64("limit", maxErr.Limit))
			sendError(h.logger, w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.WarnContext(ctx, "invalid sync request", slog.Any("error", err))
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.executor.Execute(ctx, userID, req)
	if err != nil {
		h.handleSyncError(ctx, w, userID, err)
		return
	}

	out, err := toSyncResponse(resp)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode server changes", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, out, http.StatusOK)
}

// decodeRequest разбирает конверт запроса.
// Неизвестные ключи верхнего уровня игнорируются; отдельные изменения
// разбираются позже, ошибка в одном из них не отклоняет весь запрос.
func (h *SyncHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (syncer.Request, error) {
	req := syncer.Request{Changes: make(map[string][]json.RawMessage)}

	var envelope map[string]json.RawMessage
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, err
		}
		return req, fmt.Errorf("%w: malformed JSON body", syncer.ErrInvalidRequest)
	}
	if envelope == nil {
		return req, fmt.Errorf("%w: body must be a JSON object", syncer.ErrInvalidRequest)
	}

	if raw, ok := envelope[lastSyncKey]; ok && !isNull(raw) {
		var lastSync time.Time
		if err := json.Unmarshal(raw, &lastSync); err != nil {
			return req, fmt.Errorf("%w: lastSync must be an RFC 3339 timestamp", syncer.ErrInvalidRequest)
		}
		req.Checkpoint = models.Normalize(lastSync)
	}

	for key, raw := range envelope {
		if key == lastSyncKey || !h.collections.HasCollection(key) || isNull(raw) {
			continue
		}
		var changes []json.RawMessage
		if err := json.Unmarshal(raw, &changes); err != nil {
			return req, fmt.Errorf("%w: %s must be an array", syncer.ErrInvalidRequest, key)
		}
		req.Changes[key] = changes
	}

	return req, nil
}

func (h *SyncHandler) handleSyncError(ctx context.Context, w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, syncer.ErrTooManyChanges):
		h.logger.WarnContext(ctx, "sync rejected", slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, syncer.ErrInvalidRequest):
		h.logger.WarnContext(ctx, "sync rejected", slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.WarnContext(ctx, "sync canceled", slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "request canceled, retry later", http.StatusServiceUnavailable)
	default:
		h.logger.ErrorContext(ctx, "sync failed", slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "sync failed, retry later", http.StatusInternalServerError)
	}
}

// toSyncResponse переводит результат синхронизации в формат API
func toSyncResponse(resp *syncer.Response) (*api.SyncResponse, error) {
	out := &api.SyncResponse{
		ServerTime:    resp.ServerTime,
		ServerChanges: make([]api.ServerChange, 0, len(resp.ServerChanges)),
		Conflicts:     make([]api.Conflict, 0, len(resp.Conflicts)),
		Errors:        make([]api.RecordError, 0, len(resp.Errors)),
	}

	for _, change := range resp.ServerChanges {
		record, err := json.Marshal(change.Record)
		if err != nil {
			return nil, err
		}
		out.ServerChanges = append(out.ServerChanges, api.ServerChange{
			Entity: change.Entity,
			Record: record,
		})
	}

	for _, c := range resp.Conflicts {
		out.Conflicts = append(out.Conflicts, api.Conflict{
			Entity:        c.Entity,
			ID:            c.ID.String(),
			ServerUpdated: c.ServerUpdated,
			ClientUpdated: c.ClientUpdated,
		})
	}

	for _, e := range resp.Errors {
		re := api.RecordError{
			Entity: e.Entity,
			Index:  e.Index,
			Error:  e.Message,
		}
		if e.ID != nil {
			id := e.ID.String()
			re.ID = &id
		}
		out.Errors = append(out.Errors, re)
	}

	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
