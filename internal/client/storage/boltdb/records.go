package boltdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/contactsync/internal/client/storage"
)

func recordKey(id uuid.UUID) []byte {
	return []byte(id.String())
}

// SaveContact stores or replaces a local contact
func (s *Storage) SaveContact(_ context.Context, c *storage.LocalContact) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return saveRecord(tx, bucketContacts, c.ID, c)
	})
}

// GetContact retrieves a local contact by ID
func (s *Storage) GetContact(_ context.Context, id uuid.UUID) (*storage.LocalContact, error) {
	var c *storage.LocalContact
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		c, err = getRecord[storage.LocalContact](tx, bucketContacts, id)
		return err
	})
	return c, err
}

// ListContacts returns all local contacts ordered by last name, first name
func (s *Storage) ListContacts(_ context.Context) ([]*storage.LocalContact, error) {
	var out []*storage.LocalContact
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = listRecords[storage.LocalContact](tx, bucketContacts)
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

// SaveCompany stores or replaces a local company
func (s *Storage) SaveCompany(_ context.Context, c *storage.LocalCompany) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return saveRecord(tx, bucketCompanies, c.ID, c)
	})
}

// GetCompany retrieves a local company by ID
func (s *Storage) GetCompany(_ context.Context, id uuid.UUID) (*storage.LocalCompany, error) {
	var c *storage.LocalCompany
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		c, err = getRecord[storage.LocalCompany](tx, bucketCompanies, id)
		return err
	})
	return c, err
}

// ListCompanies returns all local companies ordered by name
func (s *Storage) ListCompanies(_ context.Context) ([]*storage.LocalCompany, error) {
	var out []*storage.LocalCompany
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = listRecords[storage.LocalCompany](tx, bucketCompanies)
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func saveRecord(tx *bbolt.Tx, name []byte, id uuid.UUID, v any) error {
	b, err := bucket(tx, name)
	if err != nil {
		return err
	}
	return putJSON(b, recordKey(id), v)
}

func getRecord[T any](tx *bbolt.Tx, name []byte, id uuid.UUID) (*T, error) {
	b, err := bucket(tx, name)
	if err != nil {
		return nil, err
	}
	var v T
	found, err := getJSON(b, recordKey(id), &v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrRecordNotFound
	}
	return &v, nil
}

func listRecords[T any](tx *bbolt.Tx, name []byte) ([]*T, error) {
	b, err := bucket(tx, name)
	if err != nil {
		return nil, err
	}

	var out []*T
	err = b.ForEach(func(k, _ []byte) error {
		var v T
		if _, err := getJSON(b, k, &v); err != nil {
			return err
		}
		out = append(out, &v)
		return nil
	})
	return out, err
}
