package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/server/storage"
	"github.com/iudanet/contactsync/internal/syncer"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var _ storage.Backend = (*Storage)(nil)

// Storage represents SQLite storage implementation
type Storage struct {
	db        *sql.DB
	contacts  *contactRepo
	companies *companyRepo
}

// New creates a new SQLite storage instance
// dbPath is the path to the SQLite database file
// Use ":memory:" for in-memory database (useful for testing)
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем соединение с БД
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Одно соединение: транзакции синхронизации выполняются строго последовательно,
	// а in-memory БД не теряется между соединениями
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Включаем WAL mode и другие оптимизации
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Storage{
		db:        db,
		contacts:  &contactRepo{},
		companies: &companyRepo{},
	}

	// Запускаем миграции
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks database availability
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// runMigrations выполняет миграции из embedded FS
func (s *Storage) runMigrations(ctx context.Context) error {
	// Устанавливаем dialect для SQLite
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	// Устанавливаем источник миграций из embedded FS
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	// Запускаем миграции
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Begin начинает транзакцию синхронизации.
// Транзакция не откатывается автоматически при отмене ctx: решение о commit
// принимает вызывающий, отдельные запросы внутри нее по-прежнему учитывают отмену.
func (s *Storage) Begin(ctx context.Context) (syncer.Session, error) {
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &session{tx: tx}, nil
}

// Contacts returns contacts adapter
func (s *Storage) Contacts() syncer.Adapter[*models.Contact] {
	return s.contacts
}

// Companies returns companies adapter
func (s *Storage) Companies() syncer.Adapter[*models.Company] {
	return s.companies
}

// session обертка над *sql.Tx
type session struct {
	tx   *sql.Tx
	done bool
}

func (s *session) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.done = true
	return nil
}

func (s *session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// txFrom извлекает транзакцию из сессии
func txFrom(s syncer.Session) (*sql.Tx, error) {
	sess, ok := s.(*session)
	if !ok {
		return nil, fmt.Errorf("unexpected session type %T", s)
	}
	return sess.tx, nil
}

// toMicro переводит время в формат хранения
func toMicro(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

// fromMicro восстанавливает время из формата хранения
func fromMicro(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// nullString конвертирует опциональную строку для записи
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr конвертирует sql.NullString при чтении
func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
