package boltdb

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/iudanet/contactsync/internal/client/storage"
)

var authKey = []byte("current")

// SaveAuth stores authentication data
func (s *Storage) SaveAuth(_ context.Context, auth *storage.AuthData) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketAuth)
		if err != nil {
			return err
		}
		return putJSON(b, authKey, auth)
	})
}

// GetAuth retrieves stored authentication data
func (s *Storage) GetAuth(_ context.Context) (*storage.AuthData, error) {
	var auth storage.AuthData

	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketAuth)
		if err != nil {
			return err
		}
		found, err := getJSON(b, authKey, &auth)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrAuthNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &auth, nil
}

// DeleteAuth removes stored authentication data (logout)
func (s *Storage) DeleteAuth(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketAuth)
		if err != nil {
			return err
		}

		// Проверяем существование данных
		if b.Get(authKey) == nil {
			return storage.ErrAuthNotFound
		}
		return b.Delete(authKey)
	})
}
