package boltdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/contactsync/internal/client/storage"
	"github.com/iudanet/contactsync/internal/models"
)

var (
	keyCheckpoint = []byte("checkpoint")
	keyLastSyncAt = []byte("last_sync_at")
)

// localPtr ограничение для указателей на локальные записи
type localPtr[T any] interface {
	*T
	storage.Local
}

// GetSyncState returns checkpoint and time of the last successful sync
func (s *Storage) GetSyncState(_ context.Context) (*storage.SyncState, error) {
	state := &storage.SyncState{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		if state.Checkpoint, err = getTime(b, keyCheckpoint); err != nil {
			return err
		}
		state.LastSyncAt, err = getTime(b, keyLastSyncAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	return state, nil
}

// ApplySync применяет результат синхронизации в одной транзакции.
// Порядок: снять dirty с принятых изменений, сохранить конфликты,
// применить серверные изменения, сохранить checkpoint.
func (s *Storage) ApplySync(_ context.Context, batch *storage.SyncBatch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, p := range batch.Accepted {
			if err := markClean(tx, p.Key, p.UpdatedAt); err != nil {
				return err
			}
		}

		// Для записей в конфликте серверная версия заменяет локальную без сравнения
		rejected := make(map[storage.RecordKey]bool, len(batch.Conflicts))
		conflicts, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}
		for _, c := range batch.Conflicts {
			if err := putJSON(conflicts, []byte(c.Key.String()), c); err != nil {
				return err
			}
			rejected[c.Key] = true
		}

		for _, c := range batch.Companies {
			key := storage.RecordKey{Entity: models.KindCompany, ID: c.ID}
			local := &storage.LocalCompany{Company: *c}
			if err := applyServer(tx, bucketCompanies, c.ID, local, rejected[key]); err != nil {
				return err
			}
		}
		for _, c := range batch.Contacts {
			key := storage.RecordKey{Entity: models.KindContact, ID: c.ID}
			local := &storage.LocalContact{Contact: *c}
			if err := applyServer(tx, bucketContacts, c.ID, local, rejected[key]); err != nil {
				return err
			}
		}

		meta, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		if err := putTime(meta, keyCheckpoint, batch.ServerTime); err != nil {
			return err
		}
		return putTime(meta, keyLastSyncAt, batch.SyncedAt)
	})
}

// markClean снимает dirty, если локальная версия не менялась после отправки
func markClean(tx *bbolt.Tx, key storage.RecordKey, sent time.Time) error {
	switch key.Entity {
	case models.KindContact:
		return markCleanIn[storage.LocalContact](tx, bucketContacts, key.ID, sent)
	case models.KindCompany:
		return markCleanIn[storage.LocalCompany](tx, bucketCompanies, key.ID, sent)
	default:
		return fmt.Errorf("unknown entity %q", key.Entity)
	}
}

func markCleanIn[T any, P localPtr[T]](tx *bbolt.Tx, name []byte, id uuid.UUID, sent time.Time) error {
	rec, err := getRecord[T](tx, name, id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	local := P(rec)
	if !local.IsDirty() || !local.Meta().UpdatedAt.Equal(sent) {
		return nil
	}
	local.SetDirty(false)
	return saveRecord(tx, name, id, rec)
}

// applyServer сохраняет серверную версию записи (локальный LWW):
// несинхронизированная локальная правка новее серверной версии сохраняется.
func applyServer[T any, P localPtr[T]](tx *bbolt.Tx, name []byte, id uuid.UUID, incoming P, force bool) error {
	if !force {
		existing, err := getRecord[T](tx, name, id)
		switch {
		case errors.Is(err, storage.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			local := P(existing)
			if local.IsDirty() && local.Meta().UpdatedAt.After(incoming.Meta().UpdatedAt) {
				return nil
			}
		}
	}

	incoming.SetDirty(false)
	return saveRecord(tx, name, id, incoming)
}

// ListConflicts returns stored conflicts ordered by detection time
func (s *Storage) ListConflicts(_ context.Context) ([]*storage.Conflict, error) {
	var out []*storage.Conflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = listRecords[storage.Conflict](tx, bucketConflicts)
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

// GetConflict retrieves a stored conflict
func (s *Storage) GetConflict(_ context.Context, key storage.RecordKey) (*storage.Conflict, error) {
	var c storage.Conflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}
		found, err := getJSON(b, []byte(key.String()), &c)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrConflictNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteConflict removes a stored conflict
func (s *Storage) DeleteConflict(_ context.Context, key storage.RecordKey) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketConflicts)
		if err != nil {
			return err
		}
		k := []byte(key.String())
		if b.Get(k) == nil {
			return storage.ErrConflictNotFound
		}
		return b.Delete(k)
	})
}

func putTime(b *bbolt.Bucket, key []byte, t time.Time) error {
	data, err := t.UTC().MarshalText()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return b.Put(key, data)
}

func getTime(b *bbolt.Bucket, key []byte) (*time.Time, error) {
	data := b.Get(key)
	if data == nil {
		return nil, nil
	}
	var t time.Time
	if err := t.UnmarshalText(data); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &t, nil
}
