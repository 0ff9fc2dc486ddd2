package syncer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/models"
)

// Record любая сущность, участвующая в синхронизации.
type Record interface {
	// Meta возвращает общие sync-поля записи (id, createdAt, updatedAt)
	Meta() *models.Syncable
}

// ClientChange изменение записи, присланное клиентом.
// UpdatedAt == nil означает, что клиент никогда не синхронизировал эту запись.
type ClientChange[R Record] struct {
	Record    R
	UpdatedAt *time.Time
}

// Session единица работы с хранилищем (транзакция).
// Изменения, сделанные в рамках сессии, видны только ей до Commit.
type Session interface {
	// Commit атомарно фиксирует все изменения сессии
	Commit() error

	// Rollback откатывает изменения. Вызов после Commit безопасен и ничего не делает.
	Rollback() error
}

// Store открывает сессии работы с хранилищем.
type Store interface {
	// Begin начинает новую сессию
	Begin(ctx context.Context) (Session, error)
}

// Adapter доступ к записям одного типа в рамках сессии.
type Adapter[R Record] interface {
	// ChangedSince возвращает записи с updatedAt строго больше since,
	// упорядоченные по updatedAt, затем по id.
	// Returns empty slice if no records found
	ChangedSince(ctx context.Context, s Session, since time.Time) ([]R, error)

	// Find возвращает запись по id
	// Returns ErrNotFound if record doesn't exist
	Find(ctx context.Context, s Session, id uuid.UUID) (R, error)

	// Upsert создает или обновляет запись (compare-and-set по updatedAt).
	// expected == nil: запись не должна существовать.
	// expected != nil: запись должна существовать с updatedAt == *expected.
	// Returns ErrStale if the precondition does not hold
	Upsert(ctx context.Context, s Session, rec R, expected *time.Time) error

	// Delete удаляет запись по id
	// Returns ErrNotFound if record doesn't exist
	Delete(ctx context.Context, s Session, id uuid.UUID) error
}

// DecodeFunc разбирает и валидирует одно клиентское изменение.
type DecodeFunc[R Record] func(raw json.RawMessage) (ClientChange[R], error)

// MergeFunc возвращает новую версию записи: копию server
// с изменяемыми полями из client. Identity и audit поля берутся из server.
type MergeFunc[R Record] func(server, client R) R

// EqualFunc сообщает, совпадают ли изменяемые поля двух версий записи.
// Identity и audit поля не сравниваются.
type EqualFunc[R Record] func(a, b R) bool
