package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/models"
)

// LocalContact контакт в локальной реплике.
// Dirty означает, что локальная версия еще не принята сервером.
type LocalContact struct {
	models.Contact
	Dirty bool `json:"dirty"`
}

// LocalCompany компания в локальной реплике.
type LocalCompany struct {
	models.Company
	Dirty bool `json:"dirty"`
}

// RecordStorage defines interface for local contacts and companies
type RecordStorage interface {
	SaveContact(ctx context.Context, c *LocalContact) error
	// GetContact returns ErrRecordNotFound if contact doesn't exist
	GetContact(ctx context.Context, id uuid.UUID) (*LocalContact, error)
	ListContacts(ctx context.Context) ([]*LocalContact, error)

	SaveCompany(ctx context.Context, c *LocalCompany) error
	// GetCompany returns ErrRecordNotFound if company doesn't exist
	GetCompany(ctx context.Context, id uuid.UUID) (*LocalCompany, error)
	ListCompanies(ctx context.Context) ([]*LocalCompany, error)
}

// Local общий доступ к sync-полям и флагу dirty локальной записи
type Local interface {
	Meta() *models.Syncable
	IsDirty() bool
	SetDirty(dirty bool)
}

func (c *LocalContact) IsDirty() bool       { return c.Dirty }
func (c *LocalContact) SetDirty(dirty bool) { c.Dirty = dirty }
func (c *LocalCompany) IsDirty() bool       { return c.Dirty }
func (c *LocalCompany) SetDirty(dirty bool) { c.Dirty = dirty }

// RecordKey адрес записи любого типа
type RecordKey struct {
	Entity string    `json:"entity"`
	ID     uuid.UUID `json:"id"`
}

func (k RecordKey) String() string {
	return k.Entity + "/" + k.ID.String()
}

// ParseRecordKey разбирает тип сущности и id
func ParseRecordKey(entity, id string) (RecordKey, error) {
	switch entity {
	case models.KindContact, models.KindCompany:
	default:
		return RecordKey{}, fmt.Errorf("unknown entity %q", entity)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return RecordKey{}, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return RecordKey{Entity: entity, ID: parsed}, nil
}

// Conflict локальная версия, отклоненная сервером.
// Хранится до решения пользователя: resubmit или discard.
type Conflict struct {
	DetectedAt    time.Time       `json:"detected_at"`
	ServerUpdated time.Time       `json:"server_updated"`
	ClientUpdated *time.Time      `json:"client_updated"`
	Local         json.RawMessage `json:"local"` // JSON модели (models.Contact или models.Company)
	Key           RecordKey       `json:"key"`
}

// Pushed клиентское изменение, принятое сервером
type Pushed struct {
	UpdatedAt time.Time // updatedAt отправленной версии
	Key       RecordKey
}

// SyncBatch результат одной синхронизации, применяемый атомарно
type SyncBatch struct {
	ServerTime time.Time // новый checkpoint
	SyncedAt   time.Time // локальное время завершения синхронизации
	Contacts   []*models.Contact
	Companies  []*models.Company
	Accepted   []Pushed
	Conflicts  []*Conflict
}

// SyncState состояние синхронизации
type SyncState struct {
	Checkpoint *time.Time // nil если синхронизаций еще не было
	LastSyncAt *time.Time
}

// SyncStorage defines interface for checkpoint and conflicts
type SyncStorage interface {
	// GetSyncState returns checkpoint and time of the last successful sync
	GetSyncState(ctx context.Context) (*SyncState, error)

	// ApplySync applies server changes, clears dirty flags of accepted
	// changes, stores conflicts and saves the checkpoint in one transaction
	ApplySync(ctx context.Context, batch *SyncBatch) error

	ListConflicts(ctx context.Context) ([]*Conflict, error)
	// GetConflict returns ErrConflictNotFound if conflict doesn't exist
	GetConflict(ctx context.Context, key RecordKey) (*Conflict, error)
	// DeleteConflict returns ErrConflictNotFound if conflict doesn't exist
	DeleteConflict(ctx context.Context, key RecordKey) error
}
