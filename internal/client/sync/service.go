// Package sync синхронизирует локальную реплику с сервером.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/client/storage"
	"github.com/iudanet/contactsync/internal/kinds"
	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/pkg/api"
)

//go:generate moq -out api_mock.go . APIClient
//go:generate moq -out token_mock.go . TokenSource

// APIClient часть HTTP клиента, нужная для синхронизации
type APIClient interface {
	Sync(ctx context.Context, accessToken string, req *api.SyncRequest) (*api.SyncResponse, error)
	FetchRecord(ctx context.Context, accessToken, collection, id string) (json.RawMessage, error)
}

// TokenSource выдает действующий access token
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// RecordError локальное изменение, отклоненное сервером как невалидное.
// Запись остается dirty до исправления.
type RecordError struct {
	Message string
	Key     storage.RecordKey
}

// Result итог синхронизации
type Result struct {
	ServerTime time.Time
	Conflicts  []*storage.Conflict
	Errors     []RecordError
	Pushed     int // отправлено изменений
	Accepted   int // принято сервером
	Pulled     int // получено серверных изменений
}

// Service handles synchronization between client and server
type Service struct {
	api     APIClient
	tokens  TokenSource
	records storage.RecordStorage
	state   storage.SyncStorage
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new sync service
func NewService(apiClient APIClient, tokens TokenSource, records storage.RecordStorage, state storage.SyncStorage, logger *slog.Logger) *Service {
	return &Service{
		api:     apiClient,
		tokens:  tokens,
		records: records,
		state:   state,
		logger:  logger,
		now:     time.Now,
	}
}

// outbox локальные изменения, отправленные в одном запросе.
// Индексы совпадают с позициями в массивах запроса.
type outbox struct {
	contacts  []*storage.LocalContact
	companies []*storage.LocalCompany
}

// sent возвращает отправленную модель без локального флага dirty
func (o *outbox) sent(key storage.RecordKey) (any, bool) {
	switch key.Entity {
	case models.KindContact:
		for _, c := range o.contacts {
			if c.ID == key.ID {
				return &c.Contact, true
			}
		}
	case models.KindCompany:
		for _, c := range o.companies {
			if c.ID == key.ID {
				return &c.Company, true
			}
		}
	}
	return nil, false
}

func (o *outbox) at(entity string, index int) (storage.Local, bool) {
	switch entity {
	case models.KindContact:
		if index >= 0 && index < len(o.contacts) {
			return o.contacts[index], true
		}
	case models.KindCompany:
		if index >= 0 && index < len(o.companies) {
			return o.companies[index], true
		}
	}
	return nil, false
}

// Sync выполняет один цикл синхронизации:
// 1. отправляет все dirty записи вместе с checkpoint
// 2. сохраняет отклоненные сервером версии как конфликты
// 3. применяет серверные изменения и новый checkpoint одной транзакцией
//
// При ошибке транспорта локальное состояние не меняется, и повтор безопасен.
func (s *Service) Sync(ctx context.Context) (*Result, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	state, err := s.state.GetSyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	out, req, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	req.LastSync = state.Checkpoint

	s.logger.Info("Starting synchronization",
		slog.Int("contacts", len(req.Contacts)),
		slog.Int("companies", len(req.Companies)),
		slog.Bool("full", state.Checkpoint == nil))

	resp, err := s.api.Sync(ctx, token, req)
	if err != nil {
		return nil, err
	}

	batch := &storage.SyncBatch{
		ServerTime: resp.ServerTime,
		SyncedAt:   s.now(),
	}
	result := &Result{
		ServerTime: resp.ServerTime,
		Pushed:     len(out.contacts) + len(out.companies),
	}

	pulled := s.parseChanges(resp.ServerChanges, batch)

	failed := make(map[storage.RecordKey]bool, len(resp.Errors))
	for _, e := range resp.Errors {
		rec, ok := out.at(e.Entity, e.Index)
		if !ok {
			s.logger.Warn("Server reported error for unknown change",
				slog.String("entity", e.Entity), slog.Int("index", e.Index), slog.String("error", e.Error))
			continue
		}
		key := storage.RecordKey{Entity: e.Entity, ID: rec.Meta().ID}
		failed[key] = true
		result.Errors = append(result.Errors, RecordError{Key: key, Message: e.Error})
		s.logger.Warn("Change rejected by server", slog.String("key", key.String()), slog.String("error", e.Error))
	}

	rejected := make(map[storage.RecordKey]bool, len(resp.Conflicts))
	for _, c := range resp.Conflicts {
		key, err := storage.ParseRecordKey(c.Entity, c.ID)
		if err != nil {
			s.logger.Warn("Skipping conflict", slog.String("entity", c.Entity), slog.String("id", c.ID), slog.Any("error", err))
			continue
		}
		// отклоненная запись остается dirty, даже если конфликт не удалось сохранить
		rejected[key] = true

		conflict, err := s.conflict(ctx, token, key, c, out, pulled, batch)
		if err != nil {
			s.logger.Warn("Skipping conflict", slog.String("key", key.String()), slog.Any("error", err))
			continue
		}
		batch.Conflicts = append(batch.Conflicts, conflict)
	}

	for _, c := range out.contacts {
		accept(batch, storage.RecordKey{Entity: models.KindContact, ID: c.ID}, c.UpdatedAt, failed, rejected)
	}
	for _, c := range out.companies {
		accept(batch, storage.RecordKey{Entity: models.KindCompany, ID: c.ID}, c.UpdatedAt, failed, rejected)
	}

	if err := s.state.ApplySync(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to apply sync result: %w", err)
	}

	result.Accepted = len(batch.Accepted)
	result.Pulled = len(batch.Contacts) + len(batch.Companies)
	result.Conflicts = batch.Conflicts

	s.logger.Info("Synchronization completed",
		slog.Int("pushed", result.Pushed),
		slog.Int("accepted", result.Accepted),
		slog.Int("pulled", result.Pulled),
		slog.Int("conflicts", len(result.Conflicts)),
		slog.Int("errors", len(result.Errors)))

	return result, nil
}

// collect собирает dirty записи в запрос
func (s *Service) collect(ctx context.Context) (*outbox, *api.SyncRequest, error) {
	contacts, err := s.records.ListContacts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	companies, err := s.records.ListCompanies(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list companies: %w", err)
	}

	out := &outbox{}
	req := &api.SyncRequest{}
	for _, c := range contacts {
		if c.Dirty {
			out.contacts = append(out.contacts, c)
			req.Contacts = append(req.Contacts, kinds.ContactToPayload(&c.Contact))
		}
	}
	for _, c := range companies {
		if c.Dirty {
			out.companies = append(out.companies, c)
			req.Companies = append(req.Companies, kinds.CompanyToPayload(&c.Company))
		}
	}
	return out, req, nil
}

// parseChanges раскладывает серверные изменения по типам.
// Возвращает множество полученных ключей.
func (s *Service) parseChanges(changes []api.ServerChange, batch *storage.SyncBatch) map[storage.RecordKey]bool {
	pulled := make(map[storage.RecordKey]bool, len(changes))
	for _, ch := range changes {
		switch ch.Entity {
		case models.KindContact:
			var c models.Contact
			if err := json.Unmarshal(ch.Record, &c); err != nil {
				s.logger.Warn("Failed to decode server contact", slog.Any("error", err))
				continue
			}
			batch.Contacts = append(batch.Contacts, &c)
			pulled[storage.RecordKey{Entity: ch.Entity, ID: c.ID}] = true
		case models.KindCompany:
			var c models.Company
			if err := json.Unmarshal(ch.Record, &c); err != nil {
				s.logger.Warn("Failed to decode server company", slog.Any("error", err))
				continue
			}
			batch.Companies = append(batch.Companies, &c)
			pulled[storage.RecordKey{Entity: ch.Entity, ID: c.ID}] = true
		default:
			s.logger.Warn("Skipping change of unknown entity", slog.String("entity", ch.Entity))
		}
	}
	return pulled
}

// conflict сохраняет отклоненную локальную версию.
// Если серверной версии нет среди полученных изменений (она старше checkpoint),
// она запрашивается отдельно, чтобы заменить локальную.
func (s *Service) conflict(ctx context.Context, token string, key storage.RecordKey, c api.Conflict, out *outbox, pulled map[storage.RecordKey]bool, batch *storage.SyncBatch) (*storage.Conflict, error) {
	rec, ok := out.sent(key)
	if !ok {
		return nil, fmt.Errorf("conflict for change that was not sent")
	}
	local, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode local version: %w", err)
	}

	if !pulled[key] {
		if err := s.fetch(ctx, token, key, batch); err != nil {
			return nil, err
		}
	}

	return &storage.Conflict{
		Key:           key,
		DetectedAt:    s.now(),
		ServerUpdated: c.ServerUpdated,
		ClientUpdated: c.ClientUpdated,
		Local:         local,
	}, nil
}

func (s *Service) fetch(ctx context.Context, token string, key storage.RecordKey, batch *storage.SyncBatch) error {
	switch key.Entity {
	case models.KindContact:
		raw, err := s.api.FetchRecord(ctx, token, api.CollectionContacts, key.ID.String())
		if err != nil {
			return err
		}
		var c models.Contact
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("failed to decode server contact: %w", err)
		}
		batch.Contacts = append(batch.Contacts, &c)
	case models.KindCompany:
		raw, err := s.api.FetchRecord(ctx, token, api.CollectionCompanies, key.ID.String())
		if err != nil {
			return err
		}
		var c models.Company
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("failed to decode server company: %w", err)
		}
		batch.Companies = append(batch.Companies, &c)
	}
	return nil
}

func accept(batch *storage.SyncBatch, key storage.RecordKey, sent time.Time, failed, rejected map[storage.RecordKey]bool) {
	if failed[key] || rejected[key] || key.ID == uuid.Nil {
		return
	}
	batch.Accepted = append(batch.Accepted, storage.Pushed{Key: key, UpdatedAt: sent})
}
