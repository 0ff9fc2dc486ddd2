package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/pkg/api"
)

func TestRecordHandler_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	// Клиентский updatedAt игнорируется, stamp всегда серверный
	clientTime := testNow.Add(24 * time.Hour)
	w := env.do(t, http.MethodPost, "/api/v1/contacts", "alice", api.ContactPayload{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Phone:     ptr("+44 20 7946 0000"),
		UpdatedAt: &clientTime,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeBody[models.Contact](t, w)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, testNow, created.UpdatedAt)
	assert.Equal(t, testNow, created.CreatedAt)
	assert.Equal(t, "/api/v1/contacts/"+created.ID.String(), w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, "/api/v1/contacts/"+created.ID.String(), "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[models.Contact](t, w)
	assert.Equal(t, created, got)
}

func TestRecordHandler_Create_ClientID(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	w := env.do(t, http.MethodPost, "/api/v1/companies", "alice", api.CompanyPayload{ID: id.String(), Name: "Acme"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, id, decodeBody[models.Company](t, w).ID)

	// Повторное создание с тем же id
	w = env.do(t, http.MethodPost, "/api/v1/companies", "alice", api.CompanyPayload{ID: id.String(), Name: "Acme 2"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRecordHandler_Create_Invalid(t *testing.T) {
	tests := []struct {
		body    any
		name    string
		message string
	}{
		{name: "missing first name", body: api.ContactPayload{LastName: "X"}, message: "firstName is required"},
		{name: "bad email", body: api.ContactPayload{FirstName: "A", LastName: "B", Email: ptr("nope")}, message: "email"},
		{name: "bad company id", body: api.ContactPayload{FirstName: "A", LastName: "B", CompanyID: ptr("123")}, message: "companyId"},
		{name: "malformed JSON", body: `{"firstName":`, message: "malformed contact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, http.MethodPost, "/api/v1/contacts", "alice", tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeBody[api.ErrorResponse](t, w).Message, tt.message)
		})
	}
}

func TestRecordHandler_Update(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	created := testNow.Add(-time.Hour)
	env.seedContact(t, &models.Contact{
		Syncable:  models.Syncable{ID: id, CreatedAt: created, UpdatedAt: created},
		FirstName: "Ada",
		LastName:  "Byron",
	})

	w := env.do(t, http.MethodPut, "/api/v1/contacts/"+id.String(), "alice", api.ContactPayload{
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated := decodeBody[models.Contact](t, w)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "Lovelace", updated.LastName)
	assert.Equal(t, created, updated.CreatedAt, "createdAt is preserved")
	assert.Equal(t, testNow, updated.UpdatedAt)

	// Часы отстают от сохраненного updatedAt: stamp все равно растет
	env.clock.Set(testNow.Add(-2 * time.Hour))
	w = env.do(t, http.MethodPut, "/api/v1/contacts/"+id.String(), "alice", api.ContactPayload{
		FirstName: "Augusta",
		LastName:  "Lovelace",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testNow.Add(time.Microsecond), decodeBody[models.Contact](t, w).UpdatedAt)
}

func TestRecordHandler_Update_Errors(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.seedContact(t, &models.Contact{
		Syncable:  models.Syncable{ID: id, CreatedAt: testNow, UpdatedAt: testNow},
		FirstName: "Ada",
		LastName:  "Byron",
	})

	tests := []struct {
		body       any
		name       string
		path       string
		wantStatus int
	}{
		{name: "not found", path: "/api/v1/contacts/" + uuid.NewString(), body: api.ContactPayload{FirstName: "A", LastName: "B"}, wantStatus: http.StatusNotFound},
		{name: "invalid id", path: "/api/v1/contacts/42", body: api.ContactPayload{FirstName: "A", LastName: "B"}, wantStatus: http.StatusBadRequest},
		{name: "id mismatch", path: "/api/v1/contacts/" + id.String(), body: api.ContactPayload{ID: uuid.NewString(), FirstName: "A", LastName: "B"}, wantStatus: http.StatusBadRequest},
		{name: "validation", path: "/api/v1/contacts/" + id.String(), body: api.ContactPayload{FirstName: "A"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, tt.path, "alice", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRecordHandler_ListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	older := uuid.New()
	newer := uuid.New()
	env.seedContact(t, &models.Contact{
		Syncable:  models.Syncable{ID: newer, CreatedAt: testNow, UpdatedAt: testNow},
		FirstName: "Newer", LastName: "X",
	})
	env.seedContact(t, &models.Contact{
		Syncable:  models.Syncable{ID: older, CreatedAt: testNow.Add(-time.Hour), UpdatedAt: testNow.Add(-time.Hour)},
		FirstName: "Older", LastName: "X",
	})

	w := env.do(t, http.MethodGet, "/api/v1/contacts", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]models.Contact](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, older, list[0].ID, "ordered by updatedAt")

	w = env.do(t, http.MethodDelete, "/api/v1/contacts/"+older.String(), "alice", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/contacts/"+older.String(), "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/contacts/"+older.String(), "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/contacts", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Contact](t, w), 1)
}

func TestRecordHandler_EmptyList(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/companies", "alice", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
