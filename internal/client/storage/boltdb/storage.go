// Package boltdb реализует локальную реплику клиента поверх BoltDB:
// записи с флагами dirty, checkpoint, токены и отклоненные версии.
package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/contactsync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketAuth      = []byte("auth")
	bucketContacts  = []byte("contacts")
	bucketCompanies = []byte("companies")
	bucketConflicts = []byte("conflicts")
	bucketMetadata  = []byte("metadata")

	allBuckets = [][]byte{bucketAuth, bucketContacts, bucketCompanies, bucketConflicts, bucketMetadata}
)

var (
	_ storage.AuthStorage   = (*Storage)(nil)
	_ storage.RecordStorage = (*Storage)(nil)
	_ storage.SyncStorage   = (*Storage)(nil)
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB; Timeout не дает зависнуть, если файл занят другим процессом
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// bucket возвращает bucket или ошибку, если он не создан
func bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}

// putJSON сериализует значение и сохраняет его по ключу
func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.Put(key, data)
}

// getJSON читает значение по ключу; found == false если ключа нет
func getJSON(b *bbolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}
