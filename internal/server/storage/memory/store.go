// Package memory реализует хранилище синхронизируемых записей в памяти.
// Используется для тестов и для запуска сервера без диска (storage.driver = memory).
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/server/storage"
	"github.com/iudanet/contactsync/internal/syncer"
)

var _ storage.Backend = (*Store)(nil)

// ErrSessionClosed indicates use of a committed or rolled back session
var ErrSessionClosed = errors.New("session is closed")

// Store хранилище в памяти.
// Одновременно может быть открыта только одна сессия (блокировка всего хранилища),
// изменения сессии накапливаются отдельно и применяются при Commit.
type Store struct {
	sem       chan struct{}
	contacts  *Table[*models.Contact]
	companies *Table[*models.Company]

	mu       sync.Mutex // защищает users, tokens и syncLog
	users    map[string]*models.User
	tokens   map[string]*models.RefreshToken
	syncLog  []*models.SyncLogEntry
	logSeqID int64
}

// New создает пустое хранилище.
func New() *Store {
	return &Store{
		sem:       make(chan struct{}, 1),
		contacts:  NewTable((*models.Contact).Clone),
		companies: NewTable((*models.Company).Clone),
		users:     make(map[string]*models.User),
		tokens:    make(map[string]*models.RefreshToken),
	}
}

// Contacts возвращает адаптер контактов.
func (st *Store) Contacts() syncer.Adapter[*models.Contact] {
	return st.contacts
}

// Companies возвращает адаптер компаний.
func (st *Store) Companies() syncer.Adapter[*models.Company] {
	return st.companies
}

// Begin начинает сессию. Ждет завершения текущей сессии или отмены ctx.
func (st *Store) Begin(ctx context.Context) (syncer.Session, error) {
	select {
	case st.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Session{store: st, pending: make(map[any]pendingTable)}, nil
}

// Ping всегда успешен. Нужен для health check.
func (st *Store) Ping(_ context.Context) error {
	return nil
}

// Close ничего не делает.
func (st *Store) Close() error {
	return nil
}

// pendingTable изменения одной таблицы в рамках сессии
type pendingTable interface {
	apply()
}

// Session сессия хранилища в памяти.
type Session struct {
	store   *Store
	pending map[any]pendingTable
	closed  bool
}

// Commit применяет все изменения сессии и освобождает хранилище.
func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	for _, p := range s.pending {
		p.apply()
	}
	s.release()
	return nil
}

// Rollback отбрасывает изменения сессии.
func (s *Session) Rollback() error {
	if s.closed {
		return nil
	}
	s.release()
	return nil
}

func (s *Session) release() {
	s.closed = true
	s.pending = nil
	<-s.store.sem
}

