package storage

import (
	"context"
	"time"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/syncer"
)

// Backend полный набор возможностей серверного хранилища.
// Реализуется sqlite.Storage и memory.Store.
type Backend interface {
	syncer.Store
	syncer.Journal
	UserStorage
	TokenStorage

	// Contacts адаптер записей контактов
	Contacts() syncer.Adapter[*models.Contact]

	// Companies адаптер записей компаний
	Companies() syncer.Adapter[*models.Company]

	// LatestServerTime последний serverTime, выданный любому клиенту.
	// Zero value если синхронизаций еще не было
	LatestServerTime(ctx context.Context) (time.Time, error)

	// Ping проверяет доступность хранилища
	Ping(ctx context.Context) error

	// Close освобождает ресурсы хранилища
	Close() error
}
