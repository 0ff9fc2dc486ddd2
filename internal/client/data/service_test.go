package data

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/contactsync/internal/client/storage"
	"github.com/iudanet/contactsync/internal/client/storage/boltdb"
	"github.com/iudanet/contactsync/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

// newTestService создает сервис над временной bolt базой с управляемыми часами
func newTestService(t *testing.T) (*Service, *boltdb.Storage, *time.Time) {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := t0
	svc := NewService(store, store)
	svc.now = func() time.Time { return now }
	return svc, store, &now
}

func TestService_AddContact(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		in      ContactInput
		wantErr string
	}{
		{
			name: "minimal",
			in:   ContactInput{FirstName: "Ada", LastName: "Lovelace"},
		},
		{
			name: "all fields",
			in: ContactInput{
				FirstName: " Ada ",
				LastName:  "Lovelace",
				Email:     strPtr("ada@example.com"),
				Phone:     strPtr("+44 20 7946 0000"),
				CompanyID: strPtr(uuid.NewString()),
			},
		},
		{
			name:    "missing last name",
			in:      ContactInput{FirstName: "Ada"},
			wantErr: "lastName is required",
		},
		{
			name:    "blank first name",
			in:      ContactInput{FirstName: "   ", LastName: "Lovelace"},
			wantErr: "firstName is required",
		},
		{
			name:    "bad email",
			in:      ContactInput{FirstName: "Ada", LastName: "Lovelace", Email: strPtr("not-an-email")},
			wantErr: "email must be a valid email address",
		},
		{
			name:    "bad company id",
			in:      ContactInput{FirstName: "Ada", LastName: "Lovelace", CompanyID: strPtr("acme")},
			wantErr: "companyId must be a UUID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)

			got, err := svc.AddContact(ctx, tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			assert.NotEqual(t, uuid.Nil, got.ID)
			assert.True(t, got.Dirty)
			assert.Equal(t, t0, got.CreatedAt)
			assert.Equal(t, t0, got.UpdatedAt)
			assert.Equal(t, "Ada", got.FirstName)

			stored, err := store.GetContact(ctx, got.ID)
			require.NoError(t, err)
			assert.Equal(t, got, stored)
		})
	}
}

func TestService_EditContact(t *testing.T) {
	ctx := context.Background()
	svc, _, now := newTestService(t)

	created, err := svc.AddContact(ctx, ContactInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     strPtr("ada@example.com"),
	})
	require.NoError(t, err)

	t.Run("patch fields", func(t *testing.T) {
		*now = t0.Add(time.Minute)

		got, err := svc.EditContact(ctx, created.ID, ContactPatch{
			LastName: strPtr("King"),
			Phone:    strPtr("555-0100"),
		})
		require.NoError(t, err)

		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Ada", got.FirstName)
		assert.Equal(t, "King", got.LastName)
		require.NotNil(t, got.Email)
		assert.Equal(t, "ada@example.com", *got.Email)
		require.NotNil(t, got.Phone)
		assert.Equal(t, t0, got.CreatedAt)
		assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
		assert.True(t, got.Dirty)
	})

	t.Run("empty string clears optional field", func(t *testing.T) {
		*now = t0.Add(2 * time.Minute)

		got, err := svc.EditContact(ctx, created.ID, ContactPatch{Email: strPtr("")})
		require.NoError(t, err)
		assert.Nil(t, got.Email)
	})

	t.Run("clock behind keeps updatedAt increasing", func(t *testing.T) {
		before, err := svc.GetContact(ctx, created.ID)
		require.NoError(t, err)
		*now = t0.Add(-time.Hour)

		got, err := svc.EditContact(ctx, created.ID, ContactPatch{FirstName: strPtr("Augusta")})
		require.NoError(t, err)
		assert.Equal(t, before.UpdatedAt.Add(time.Microsecond), got.UpdatedAt)
	})

	t.Run("invalid patch is rejected", func(t *testing.T) {
		_, err := svc.EditContact(ctx, created.ID, ContactPatch{FirstName: strPtr("")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "firstName is required")
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.EditContact(ctx, uuid.New(), ContactPatch{})
		assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	})
}

func TestService_Companies(t *testing.T) {
	ctx := context.Background()
	svc, _, now := newTestService(t)

	_, err := svc.AddCompany(ctx, CompanyInput{Name: "Acme", Website: strPtr("acme")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "website must be an absolute URL")

	acme, err := svc.AddCompany(ctx, CompanyInput{Name: "Acme", Website: strPtr("https://acme.example")})
	require.NoError(t, err)
	assert.True(t, acme.Dirty)

	*now = t0.Add(time.Second)
	edited, err := svc.EditCompany(ctx, acme.ID, CompanyPatch{Name: strPtr("Acme Corp"), Website: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", edited.Name)
	assert.Nil(t, edited.Website)
	assert.Equal(t, t0.Add(time.Second), edited.UpdatedAt)

	_, err = svc.AddCompany(ctx, CompanyInput{Name: "Beta"})
	require.NoError(t, err)

	list, err := svc.ListCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Acme Corp", list[0].Name)

	got, err := svc.GetCompany(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, edited, got)
}

func TestService_FindByRef(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	first := &storage.LocalContact{Contact: models.Contact{
		Syncable:  models.Syncable{ID: uuid.MustParse("aaaa1111-0000-4000-8000-000000000001"), UpdatedAt: t0},
		FirstName: "Ada", LastName: "Lovelace",
	}}
	second := &storage.LocalContact{Contact: models.Contact{
		Syncable:  models.Syncable{ID: uuid.MustParse("aaaa2222-0000-4000-8000-000000000002"), UpdatedAt: t0},
		FirstName: "Alan", LastName: "Turing",
	}}
	require.NoError(t, store.SaveContact(ctx, first))
	require.NoError(t, store.SaveContact(ctx, second))

	tests := []struct {
		name    string
		ref     string
		wantID  uuid.UUID
		wantErr error
	}{
		{name: "full id", ref: first.ID.String(), wantID: first.ID},
		{name: "unique prefix", ref: "aaaa2", wantID: second.ID},
		{name: "upper case prefix", ref: "AAAA1", wantID: first.ID},
		{name: "ambiguous", ref: "aaaa", wantErr: ErrAmbiguousRef},
		{name: "no match", ref: "bbbb", wantErr: storage.ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.FindContact(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	_, err := svc.FindContact(ctx, "aa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 4 characters")

	_, err = svc.FindCompany(ctx, "cccc")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestService_PendingChanges(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	n, err := svc.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = svc.AddContact(ctx, ContactInput{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	_, err = svc.AddCompany(ctx, CompanyInput{Name: "Acme"})
	require.NoError(t, err)
	require.NoError(t, store.SaveContact(ctx, &storage.LocalContact{Contact: models.Contact{
		Syncable:  models.Syncable{ID: uuid.New(), UpdatedAt: t0},
		FirstName: "Clean", LastName: "Record",
	}}))

	n, err = svc.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// storeConflict имитирует синхронизацию, в которой сервер отклонил локальную правку
func storeConflict(t *testing.T, store *boltdb.Storage, local, server *models.Contact) storage.RecordKey {
	t.Helper()

	raw, err := json.Marshal(local)
	require.NoError(t, err)
	key := storage.RecordKey{Entity: models.KindContact, ID: local.ID}
	clientUpdated := local.UpdatedAt

	require.NoError(t, store.ApplySync(context.Background(), &storage.SyncBatch{
		ServerTime: server.UpdatedAt,
		SyncedAt:   t0,
		Contacts:   []*models.Contact{server},
		Conflicts: []*storage.Conflict{{
			Key:           key,
			DetectedAt:    t0,
			ServerUpdated: server.UpdatedAt,
			ClientUpdated: &clientUpdated,
			Local:         raw,
		}},
	}))
	return key
}

func TestService_ResubmitConflict(t *testing.T) {
	ctx := context.Background()
	svc, store, now := newTestService(t)

	id := uuid.New()
	local := &models.Contact{
		Syncable:  models.Syncable{ID: id, CreatedAt: t0, UpdatedAt: t0.Add(time.Minute)},
		FirstName: "Ada", LastName: "Local",
	}
	server := &models.Contact{
		Syncable:  models.Syncable{ID: id, CreatedAt: t0, UpdatedAt: t0.Add(time.Hour)},
		FirstName: "Ada", LastName: "Server",
	}
	key := storeConflict(t, store, local, server)

	conflicts, err := svc.ListConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	// локальные часы отстают от серверной версии
	*now = t0.Add(2 * time.Minute)
	require.NoError(t, svc.ResubmitConflict(ctx, key))

	got, err := svc.GetContact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Local", got.LastName)
	assert.True(t, got.Dirty)
	assert.Equal(t, t0.Add(time.Hour+time.Microsecond), got.UpdatedAt)

	_, err = store.GetConflict(ctx, key)
	assert.ErrorIs(t, err, storage.ErrConflictNotFound)

	err = svc.ResubmitConflict(ctx, key)
	assert.ErrorIs(t, err, storage.ErrConflictNotFound)
}

func TestService_DiscardConflict(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	id := uuid.New()
	local := &models.Contact{
		Syncable:  models.Syncable{ID: id, UpdatedAt: t0},
		FirstName: "Ada", LastName: "Local",
	}
	server := &models.Contact{
		Syncable:  models.Syncable{ID: id, UpdatedAt: t0.Add(time.Hour)},
		FirstName: "Ada", LastName: "Server",
	}
	key := storeConflict(t, store, local, server)

	require.NoError(t, svc.DiscardConflict(ctx, key))

	got, err := svc.GetContact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Server", got.LastName)
	assert.False(t, got.Dirty)

	conflicts, err := svc.ListConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
