package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/clock"
	"github.com/iudanet/contactsync/internal/syncer"
)

// RecordHandler обрабатывает CRUD запросы для одного типа записей.
// Изменения через CRUD получают серверный updatedAt и попадают
// к клиентам при следующей синхронизации. Удаление через sync не распространяется.
type RecordHandler[R syncer.Record] struct {
	logger       *slog.Logger
	store        syncer.Store
	clock        clock.Clock
	kind         syncer.Kind[R]
	resolver     syncer.Resolver
	maxBodyBytes int64
}

// NewRecordHandler создает handler для типа kind
func NewRecordHandler[R syncer.Record](logger *slog.Logger, store syncer.Store, kind syncer.Kind[R], clk clock.Clock) *RecordHandler[R] {
	return &RecordHandler[R]{
		logger:       logger.With(slog.String("entity", kind.Name)),
		store:        store,
		clock:        clk,
		kind:         kind,
		resolver:     syncer.NewResolver(syncer.StampServer),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// List обрабатывает GET /api/v1/{collection}
func (h *RecordHandler[R]) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, r, "failed to begin session", err)
		return
	}
	defer h.rollback(r, s)

	records, err := h.kind.Adapter.ChangedSince(ctx, s, time.Time{})
	if err != nil {
		h.internalError(w, r, "failed to list records", err)
		return
	}

	sendJSON(h.logger, w, records, http.StatusOK)
}

// Get обрабатывает GET /api/v1/{collection}/{id}
func (h *RecordHandler[R]) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	s, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, r, "failed to begin session", err)
		return
	}
	defer h.rollback(r, s)

	rec, err := h.kind.Adapter.Find(ctx, s, id)
	if err != nil {
		if errors.Is(err, syncer.ErrNotFound) {
			sendError(h.logger, w, h.kind.Name+" not found", http.StatusNotFound)
			return
		}
		h.internalError(w, r, "failed to get record", err)
		return
	}

	sendJSON(h.logger, w, rec, http.StatusOK)
}

// Create обрабатывает POST /api/v1/{collection}
// id может прийти от клиента; updatedAt и createdAt всегда серверные
func (h *RecordHandler[R]) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	change, ok := h.decode(w, r)
	if !ok {
		return
	}

	rec := change.Record
	meta := rec.Meta()
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}

	s, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, r, "failed to begin session", err)
		return
	}
	defer h.rollback(r, s)

	now := h.clock.Now()
	meta.CreatedAt = now
	meta.UpdatedAt = now

	if err := h.kind.Adapter.Upsert(ctx, s, rec, nil); err != nil {
		if errors.Is(err, syncer.ErrStale) {
			sendError(h.logger, w, h.kind.Name+" with this id already exists", http.StatusConflict)
			return
		}
		h.internalError(w, r, "failed to create record", err)
		return
	}

	if err := s.Commit(); err != nil {
		h.internalError(w, r, "failed to commit", err)
		return
	}

	h.logger.InfoContext(ctx, "record created", slog.String("id", meta.ID.String()))

	w.Header().Set("Location", r.URL.Path+"/"+meta.ID.String())
	sendJSON(h.logger, w, rec, http.StatusCreated)
}

// Update обрабатывает PUT /api/v1/{collection}/{id}
func (h *RecordHandler[R]) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	change, ok := h.decode(w, r)
	if !ok {
		return
	}
	if bodyID := change.Record.Meta().ID; bodyID != uuid.Nil && bodyID != id {
		sendError(h.logger, w, "id in body does not match id in path", http.StatusBadRequest)
		return
	}

	s, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, r, "failed to begin session", err)
		return
	}
	defer h.rollback(r, s)

	server, err := h.kind.Adapter.Find(ctx, s, id)
	if err != nil {
		if errors.Is(err, syncer.ErrNotFound) {
			sendError(h.logger, w, h.kind.Name+" not found", http.StatusNotFound)
			return
		}
		h.internalError(w, r, "failed to get record", err)
		return
	}

	observed := server.Meta().UpdatedAt
	decision := h.resolver.Resolve(
		syncer.Observed{UpdatedAt: observed, Exists: true},
		syncer.ChangeMeta{ID: id},
		h.clock.Now(),
	)

	merged := h.kind.Merge(server, change.Record)
	merged.Meta().UpdatedAt = decision.Stamp

	if err := h.kind.Adapter.Upsert(ctx, s, merged, &observed); err != nil {
		if errors.Is(err, syncer.ErrStale) {
			sendError(h.logger, w, h.kind.Name+" was modified concurrently, retry", http.StatusConflict)
			return
		}
		h.internalError(w, r, "failed to update record", err)
		return
	}

	if err := s.Commit(); err != nil {
		h.internalError(w, r, "failed to commit", err)
		return
	}

	h.logger.InfoContext(ctx, "record updated", slog.String("id", id.String()))
	sendJSON(h.logger, w, merged, http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/{collection}/{id}
func (h *RecordHandler[R]) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	s, err := h.store.Begin(ctx)
	if err != nil {
		h.internalError(w, r, "failed to begin session", err)
		return
	}
	defer h.rollback(r, s)

	if err := h.kind.Adapter.Delete(ctx, s, id); err != nil {
		if errors.Is(err, syncer.ErrNotFound) {
			sendError(h.logger, w, h.kind.Name+" not found", http.StatusNotFound)
			return
		}
		h.internalError(w, r, "failed to delete record", err)
		return
	}

	if err := s.Commit(); err != nil {
		h.internalError(w, r, "failed to commit", err)
		return
	}

	h.logger.InfoContext(ctx, "record deleted", slog.String("id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// decode читает тело запроса через Decode типа (та же валидация, что и в sync)
func (h *RecordHandler[R]) decode(w http.ResponseWriter, r *http.Request) (syncer.ClientChange[R], bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sendError(h.logger, w, "request body too large", http.StatusRequestEntityTooLarge)
		} else {
			sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		}
		return syncer.ClientChange[R]{}, false
	}

	change, err := h.kind.Decode(json.RawMessage(body))
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid record", slog.Any("error", err))
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return change, false
	}
	return change, true
}

func (h *RecordHandler[R]) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		sendError(h.logger, w, "id must be a UUID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *RecordHandler[R]) rollback(r *http.Request, s syncer.Session) {
	if err := s.Rollback(); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to rollback session", slog.Any("error", err))
	}
}

func (h *RecordHandler[R]) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, slog.Any("error", err))
	sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
}
