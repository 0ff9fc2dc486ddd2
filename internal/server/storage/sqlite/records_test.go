package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/syncer"
)

func strPtr(s string) *string { return &s }

func newTestContact(updated time.Time) *models.Contact {
	companyID := uuid.New()
	return &models.Contact{
		Syncable:  models.Syncable{ID: uuid.New(), CreatedAt: updated, UpdatedAt: updated},
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     strPtr("ada@example.com"),
		CompanyID: &companyID,
	}
}

// inSession выполняет fn в транзакции и фиксирует ее
func inSession(t *testing.T, s *Storage, fn func(sess syncer.Session)) {
	t.Helper()

	sess, err := s.Begin(context.Background())
	require.NoError(t, err)
	fn(sess)
	require.NoError(t, sess.Commit())
}

func TestContactRepo_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	base := time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)
	contact := newTestContact(base)

	inSession(t, s, func(sess syncer.Session) {
		require.NoError(t, s.Contacts().Upsert(ctx, sess, contact, nil))
	})

	inSession(t, s, func(sess syncer.Session) {
		got, err := s.Contacts().Find(ctx, sess, contact.ID)
		require.NoError(t, err)
		assert.Equal(t, contact, got)

		_, err = s.Contacts().Find(ctx, sess, uuid.New())
		assert.ErrorIs(t, err, syncer.ErrNotFound)
	})
}

func TestContactRepo_UpsertCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	contact := newTestContact(base)

	inSession(t, s, func(sess syncer.Session) {
		require.NoError(t, s.Contacts().Upsert(ctx, sess, contact, nil))
	})

	tests := []struct {
		wantErr  error
		expected *time.Time
		name     string
	}{
		{name: "insert over existing id", expected: nil, wantErr: syncer.ErrStale},
		{name: "update with stale expectation", expected: timePtr(base.Add(-time.Second)), wantErr: syncer.ErrStale},
		{name: "update with matching expectation", expected: timePtr(base)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := contact.Clone()
			updated.FirstName = "Augusta"
			updated.UpdatedAt = base.Add(time.Hour)

			inSession(t, s, func(sess syncer.Session) {
				err := s.Contacts().Upsert(ctx, sess, updated, tt.expected)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
			})
		})
	}

	inSession(t, s, func(sess syncer.Session) {
		got, err := s.Contacts().Find(ctx, sess, contact.ID)
		require.NoError(t, err)
		assert.Equal(t, "Augusta", got.FirstName)
		assert.Equal(t, base.Add(time.Hour), got.UpdatedAt)
		assert.Equal(t, base, got.CreatedAt)
	})

	// обновление несуществующей записи
	inSession(t, s, func(sess syncer.Session) {
		missing := newTestContact(base)
		err := s.Contacts().Upsert(ctx, sess, missing, timePtr(base))
		assert.ErrorIs(t, err, syncer.ErrStale)
	})
}

func TestContactRepo_ChangedSince(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	checkpoint := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	before := newTestContact(checkpoint.Add(-time.Hour))
	exact := newTestContact(checkpoint)
	after1 := newTestContact(checkpoint.Add(time.Microsecond))
	after2 := newTestContact(checkpoint.Add(time.Hour))

	inSession(t, s, func(sess syncer.Session) {
		for _, c := range []*models.Contact{after2, before, exact, after1} {
			require.NoError(t, s.Contacts().Upsert(ctx, sess, c, nil))
		}
	})

	inSession(t, s, func(sess syncer.Session) {
		got, err := s.Contacts().ChangedSince(ctx, sess, checkpoint)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, after1.ID, got[0].ID)
		assert.Equal(t, after2.ID, got[1].ID)

		all, err := s.Contacts().ChangedSince(ctx, sess, time.Time{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestContactRepo_RollbackIsInvisible(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	contact := newTestContact(time.Now().UTC().Truncate(time.Microsecond))

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Contacts().Upsert(ctx, sess, contact, nil))

	// своя запись видна внутри транзакции
	_, err = s.Contacts().Find(ctx, sess, contact.ID)
	require.NoError(t, err)
	require.NoError(t, sess.Rollback())

	inSession(t, s, func(sess syncer.Session) {
		_, err := s.Contacts().Find(ctx, sess, contact.ID)
		assert.ErrorIs(t, err, syncer.ErrNotFound)
	})
}

func TestContactRepo_Delete(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	contact := newTestContact(time.Now().UTC().Truncate(time.Microsecond))
	inSession(t, s, func(sess syncer.Session) {
		require.NoError(t, s.Contacts().Upsert(ctx, sess, contact, nil))
	})

	inSession(t, s, func(sess syncer.Session) {
		require.NoError(t, s.Contacts().Delete(ctx, sess, contact.ID))
		assert.ErrorIs(t, s.Contacts().Delete(ctx, sess, contact.ID), syncer.ErrNotFound)
	})
}

func TestCompanyRepo(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	company := &models.Company{
		Syncable: models.Syncable{ID: uuid.New(), CreatedAt: base, UpdatedAt: base},
		Name:     "Acme",
		Website:  strPtr("https://acme.test"),
	}

	inSession(t, s, func(sess syncer.Session) {
		require.NoError(t, s.Companies().Upsert(ctx, sess, company, nil))
		assert.ErrorIs(t, s.Companies().Upsert(ctx, sess, company, nil), syncer.ErrStale)
	})

	updated := company.Clone()
	updated.Name = "Acme Corp"
	updated.Website = nil
	updated.UpdatedAt = base.Add(time.Minute)

	inSession(t, s, func(sess syncer.Session) {
		require.NoError(t, s.Companies().Upsert(ctx, sess, updated, timePtr(base)))
	})

	inSession(t, s, func(sess syncer.Session) {
		got, err := s.Companies().Find(ctx, sess, company.ID)
		require.NoError(t, err)
		assert.Equal(t, updated, got)

		changed, err := s.Companies().ChangedSince(ctx, sess, base)
		require.NoError(t, err)
		require.Len(t, changed, 1)

		require.NoError(t, s.Companies().Delete(ctx, sess, company.ID))
		_, err = s.Companies().Find(ctx, sess, company.ID)
		assert.ErrorIs(t, err, syncer.ErrNotFound)
	})
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, found, err := s.LastServerTime(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, found)

	latest, err := s.LatestServerTime(ctx)
	require.NoError(t, err)
	assert.True(t, latest.IsZero())

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	entries := []*models.SyncLogEntry{
		{UserID: "user-1", ServerTime: t1, AppliedCount: 2},
		{UserID: "user-2", ServerTime: t2},
		{UserID: "user-1", Checkpoint: t1, ServerTime: t1.Add(time.Minute), ConflictCount: 1},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendSyncLog(ctx, e))
		assert.NotZero(t, e.ID)
	}

	last, found, err := s.LastServerTime(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, t1.Add(time.Minute), last)

	latest, err = s.LatestServerTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, t2, latest)

	log, err := s.SyncLog(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, 2, log[0].AppliedCount)
	assert.Equal(t, t1, log[1].Checkpoint)
	assert.Equal(t, 1, log[1].ConflictCount)
}
