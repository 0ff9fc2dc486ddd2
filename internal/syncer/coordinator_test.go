package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/contactsync/internal/clock"
	"github.com/iudanet/contactsync/internal/kinds"
	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/server/storage/memory"
	"github.com/iudanet/contactsync/internal/syncer"
)

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

var (
	t0800 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	t0900 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t0930 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	t1000 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1100 = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	t1200 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	store *memory.Store
	clock *clock.Manual
	coord *syncer.Coordinator
}

func newFixture(t *testing.T, opts ...syncer.Option) *fixture {
	t.Helper()

	store := memory.New()
	reg := syncer.NewRegistry()
	require.NoError(t, kinds.RegisterAll(reg, store))

	clk := clock.NewManual(t1200)
	return &fixture{
		store: store,
		clock: clk,
		coord: syncer.NewCoordinator(store, reg, clk, setupTestLogger(), opts...),
	}
}

func (f *fixture) seedContact(t *testing.T, c *models.Contact) {
	t.Helper()
	ctx := context.Background()

	s, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Contacts().Upsert(ctx, s, c, nil))
	require.NoError(t, s.Commit())
}

func (f *fixture) seedCompany(t *testing.T, c *models.Company) {
	t.Helper()
	ctx := context.Background()

	s, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Companies().Upsert(ctx, s, c, nil))
	require.NoError(t, s.Commit())
}

func (f *fixture) contacts(t *testing.T) []*models.Contact {
	t.Helper()
	ctx := context.Background()

	s, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = s.Rollback() }()

	list, err := f.store.Contacts().ChangedSince(ctx, s, time.Time{})
	require.NoError(t, err)
	return list
}

func (f *fixture) contact(t *testing.T, id uuid.UUID) *models.Contact {
	t.Helper()
	ctx := context.Background()

	s, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = s.Rollback() }()

	c, err := f.store.Contacts().Find(ctx, s, id)
	require.NoError(t, err)
	return c
}

func contactAt(id uuid.UUID, first string, updated time.Time) *models.Contact {
	return &models.Contact{
		Syncable:  models.Syncable{ID: id, CreatedAt: updated, UpdatedAt: updated},
		FirstName: first,
		LastName:  "Test",
	}
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func contactChange(t *testing.T, id uuid.UUID, first string, updated *time.Time) json.RawMessage {
	t.Helper()
	m := map[string]any{
		"firstName": first,
		"lastName":  "Test",
		"phone":     "+100",
	}
	if id != uuid.Nil {
		m["id"] = id.String()
	} else {
		m["id"] = ""
	}
	if updated != nil {
		m["updatedAt"] = updated.Format(time.RFC3339Nano)
	}
	return rawJSON(t, m)
}

func ptr(t time.Time) *time.Time { return &t }

func TestExecute_ServerNewerIsConflict(t *testing.T) {
	f := newFixture(t)
	a := uuid.New()
	f.seedContact(t, contactAt(a, "Server", t1000))

	resp, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Checkpoint: t1100,
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "Client", ptr(t0900))},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.Conflicts, 1)
	conflict := resp.Conflicts[0]
	assert.Equal(t, "contact", conflict.Entity)
	assert.Equal(t, a, conflict.ID)
	assert.Equal(t, t1000, conflict.ServerUpdated)
	require.NotNil(t, conflict.ClientUpdated)
	assert.Equal(t, t0900, *conflict.ClientUpdated)

	// серверная запись не изменилась
	stored := f.contact(t, a)
	assert.Equal(t, "Server", stored.FirstName)
	assert.Equal(t, t1000, stored.UpdatedAt)
	assert.Nil(t, stored.Phone)
}

func TestExecute_InsertWithoutIDIsNotEchoed(t *testing.T) {
	f := newFixture(t)

	resp, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, uuid.Nil, "New", nil)},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, resp.ServerChanges, "inserts must not be echoed in the same response")
	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, 1, resp.Inserted)

	stored := f.contacts(t)
	require.Len(t, stored, 1)
	assert.NotEqual(t, uuid.Nil, stored[0].ID)
	assert.Equal(t, "New", stored[0].FirstName)
	assert.Equal(t, t1200, stored[0].UpdatedAt)
	assert.Equal(t, t1200, stored[0].CreatedAt)
	assert.Equal(t, t1200, resp.ServerTime)
}

func TestExecute_InsertKeepsClientIDAndStamp(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	_, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, id, "Offline", ptr(t0900))},
		},
	})
	require.NoError(t, err)

	stored := f.contact(t, id)
	assert.Equal(t, t0900, stored.UpdatedAt)
	assert.Equal(t, t1200, stored.CreatedAt)
}

func TestExecute_ClientNewerIsAccepted(t *testing.T) {
	f := newFixture(t)
	a := uuid.New()
	f.seedContact(t, contactAt(a, "Server", t1000))

	resp, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Checkpoint: t1100,
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "Client", ptr(t1100))},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, 1, resp.Accepted)

	stored := f.contact(t, a)
	assert.Equal(t, "Client", stored.FirstName)
	require.NotNil(t, stored.Phone)
	assert.Equal(t, "+100", *stored.Phone)
	assert.Equal(t, t1100, stored.UpdatedAt)
	assert.Equal(t, t1000, stored.CreatedAt, "createdAt is never overwritten by client data")
}

func TestExecute_PullStrictlyAfterCheckpoint(t *testing.T) {
	f := newFixture(t)
	a, c, self := uuid.New(), uuid.New(), uuid.New()
	f.seedContact(t, contactAt(a, "A", t0930))
	f.seedContact(t, contactAt(c, "C", t0800))
	f.seedContact(t, contactAt(self, "Self", t0900))

	resp, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{Checkpoint: t0900})
	require.NoError(t, err)

	require.Len(t, resp.ServerChanges, 1)
	assert.Equal(t, "contact", resp.ServerChanges[0].Entity)
	assert.Equal(t, a, resp.ServerChanges[0].Record.Meta().ID)
}

func TestExecute_PullOrder(t *testing.T) {
	f := newFixture(t)

	first, second := uuid.New(), uuid.New()
	if second.String() < first.String() {
		first, second = second, first
	}
	late := uuid.New()
	f.seedContact(t, contactAt(late, "Late", t1000))
	f.seedContact(t, contactAt(second, "Second", t0900))
	f.seedContact(t, contactAt(first, "First", t0900))

	company := &models.Company{Syncable: models.Syncable{ID: uuid.New(), UpdatedAt: t1100}, Name: "Acme"}
	f.seedCompany(t, company)

	resp, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{})
	require.NoError(t, err)

	require.Len(t, resp.ServerChanges, 4)
	// компании зарегистрированы первыми
	assert.Equal(t, "company", resp.ServerChanges[0].Entity)
	assert.Equal(t, first, resp.ServerChanges[1].Record.Meta().ID)
	assert.Equal(t, second, resp.ServerChanges[2].Record.Meta().ID)
	assert.Equal(t, late, resp.ServerChanges[3].Record.Meta().ID)
}

func TestExecute_Idempotent(t *testing.T) {
	f := newFixture(t)
	a, b := uuid.New(), uuid.New()
	f.seedContact(t, contactAt(a, "Server", t1000))
	f.seedContact(t, contactAt(b, "Server", t0800))

	req := syncer.Request{
		Checkpoint: t0900,
		Changes: map[string][]json.RawMessage{
			"contacts": {
				contactChange(t, a, "Stale", ptr(t0900)), // конфликт
				contactChange(t, b, "Fresh", ptr(t1100)), // принято
				[]byte(`{"firstName":""}`),               // ошибка
			},
		},
	}

	_, err := f.coord.Execute(context.Background(), "user-1", req)
	require.NoError(t, err)

	second, err := f.coord.Execute(context.Background(), "user-1", req)
	require.NoError(t, err)
	third, err := f.coord.Execute(context.Background(), "user-1", req)
	require.NoError(t, err)

	assert.Equal(t, second.ServerChanges, third.ServerChanges)
	assert.Equal(t, second.Conflicts, third.Conflicts)
	assert.Equal(t, second.Errors, third.Errors)
	assert.Len(t, third.Conflicts, 1)

	stored := f.contact(t, b)
	assert.Equal(t, "Fresh", stored.FirstName)
	assert.Equal(t, t1100, stored.UpdatedAt)
}

func TestExecute_PartialFailure(t *testing.T) {
	f := newFixture(t)
	good1, bad, good2 := uuid.New(), uuid.New(), uuid.New()

	resp, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {
				contactChange(t, good1, "One", nil),
				rawJSON(t, map[string]any{"id": bad.String(), "firstName": "Bad", "lastName": "Test", "email": "not-email"}),
				[]byte(`[1,2,3]`),
				contactChange(t, good2, "Two", nil),
			},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.Errors, 2)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Equal(t, "contact", resp.Errors[0].Entity)
	require.NotNil(t, resp.Errors[0].ID)
	assert.Equal(t, bad, *resp.Errors[0].ID)
	assert.Contains(t, resp.Errors[0].Message, "email")

	assert.Equal(t, 2, resp.Errors[1].Index)
	assert.Nil(t, resp.Errors[1].ID)

	assert.Empty(t, resp.Conflicts, "malformed changes are not conflicts")
	assert.Len(t, f.contacts(t), 2)
}

func TestExecute_TooManyChanges(t *testing.T) {
	f := newFixture(t, syncer.WithMaxChanges(2))

	_, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts":  {contactChange(t, uuid.New(), "A", nil), contactChange(t, uuid.New(), "B", nil)},
			"companies": {rawJSON(t, map[string]any{"name": "Acme"})},
		},
	})
	assert.ErrorIs(t, err, syncer.ErrTooManyChanges)
	assert.Empty(t, f.contacts(t))
}

func TestExecute_UnknownCollectionIgnored(t *testing.T) {
	f := newFixture(t)

	resp, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"notes": {[]byte(`{"text":"hello"}`)},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Errors)
}

func TestExecute_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coord.Execute(ctx, "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, uuid.New(), "A", nil)},
		},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.contacts(t))
}

func TestExecute_ServerStampPolicy(t *testing.T) {
	f := newFixture(t, syncer.WithResolver(syncer.NewResolver(syncer.StampServer)))
	a := uuid.New()
	f.seedContact(t, contactAt(a, "Server", t1000))

	// клиентское время из будущего не попадает в хранилище
	future := t1200.Add(24 * time.Hour)
	_, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "Client", &future)},
		},
	})
	require.NoError(t, err)

	stored := f.contact(t, a)
	assert.Equal(t, "Client", stored.FirstName)
	assert.Equal(t, t1200, stored.UpdatedAt)
}

func TestExecute_ServerStampPolicyReplay(t *testing.T) {
	f := newFixture(t, syncer.WithResolver(syncer.NewResolver(syncer.StampServer)))
	a := uuid.New()
	f.seedContact(t, contactAt(a, "Server", t0800))

	req := syncer.Request{
		Checkpoint: t0800,
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "Client", ptr(t0900))},
		},
	}

	first, err := f.coord.Execute(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Accepted)
	assert.Empty(t, first.Conflicts)
	stored := f.contact(t, a)
	assert.Equal(t, t1200, stored.UpdatedAt)

	// ответ потерян, клиент повторяет тот же запрос
	f.clock.Advance(time.Minute)
	replay, err := f.coord.Execute(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, 1, replay.Accepted)
	assert.Empty(t, replay.Conflicts)
	assert.Equal(t, t1200, f.contact(t, a).UpdatedAt)

	// другие данные с тем же устаревшим timestamp по-прежнему конфликт
	req.Changes["contacts"] = []json.RawMessage{contactChange(t, a, "Other", ptr(t0900))}
	other, err := f.coord.Execute(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Zero(t, other.Accepted)
	require.Len(t, other.Conflicts, 1)
	assert.Equal(t, "Client", f.contact(t, a).FirstName)
}

func TestExecute_NeverMovesBackward(t *testing.T) {
	f := newFixture(t)
	a := uuid.New()
	// запись из будущего (быстрые часы другого клиента)
	future := t1200.Add(time.Hour)
	f.seedContact(t, contactAt(a, "Future", future))

	_, err := f.coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "NoStamp", nil)},
		},
	})
	require.NoError(t, err)

	stored := f.contact(t, a)
	assert.Equal(t, "NoStamp", stored.FirstName)
	assert.True(t, stored.UpdatedAt.After(future))
}

// failingStore оборачивает memory.Store и ломает Commit
type failingStore struct {
	*memory.Store
	commitErr error
}

type failingSession struct {
	syncer.Session
	err error
}

func (s *failingSession) Commit() error {
	_ = s.Session.Rollback()
	return s.err
}

func (s *failingSession) Rollback() error {
	return s.Session.Rollback()
}

func (fs *failingStore) Begin(ctx context.Context) (syncer.Session, error) {
	s, err := fs.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingSession{Session: s, err: fs.commitErr}, nil
}

// unwrapAdapter передает внутреннюю сессию memory-адаптеру
type unwrapAdapter[R syncer.Record] struct {
	inner syncer.Adapter[R]
}

func unwrap(s syncer.Session) syncer.Session {
	if fs, ok := s.(*failingSession); ok {
		return fs.Session
	}
	return s
}

func (a unwrapAdapter[R]) ChangedSince(ctx context.Context, s syncer.Session, since time.Time) ([]R, error) {
	return a.inner.ChangedSince(ctx, unwrap(s), since)
}

func (a unwrapAdapter[R]) Find(ctx context.Context, s syncer.Session, id uuid.UUID) (R, error) {
	return a.inner.Find(ctx, unwrap(s), id)
}

func (a unwrapAdapter[R]) Upsert(ctx context.Context, s syncer.Session, rec R, expected *time.Time) error {
	return a.inner.Upsert(ctx, unwrap(s), rec, expected)
}

func (a unwrapAdapter[R]) Delete(ctx context.Context, s syncer.Session, id uuid.UUID) error {
	return a.inner.Delete(ctx, unwrap(s), id)
}

func TestExecute_CommitFailure(t *testing.T) {
	inner := memory.New()
	store := &failingStore{Store: inner, commitErr: errors.New("disk full")}

	reg := syncer.NewRegistry()
	syncer.MustRegister(reg, kinds.Contact(unwrapAdapter[*models.Contact]{inner: inner.Contacts()}))
	coord := syncer.NewCoordinator(store, reg, clock.NewManual(t1200), setupTestLogger())

	_, err := coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, uuid.New(), "A", nil)},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, syncer.ErrStore)

	f := &fixture{store: inner}
	assert.Empty(t, f.contacts(t), "nothing must be visible after failed commit")
}

// racingAdapter имитирует конкурентную запись: перед первым Upsert
// другая сессия успевает обновить запись.
type racingAdapter struct {
	syncer.Adapter[*models.Contact]
	newer  *models.Contact
	mu     sync.Mutex
	races  int
	always bool
}

func (a *racingAdapter) Upsert(ctx context.Context, s syncer.Session, rec *models.Contact, expected *time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.always || a.races == 0 {
		a.races++
		current, err := a.Adapter.Find(ctx, s, a.newer.ID)
		if err != nil {
			return err
		}
		next := a.newer.Clone()
		next.UpdatedAt = current.UpdatedAt.Add(time.Minute)
		if err := a.Adapter.Upsert(ctx, s, next, &current.UpdatedAt); err != nil {
			return err
		}
	}
	return a.Adapter.Upsert(ctx, s, rec, expected)
}

func TestExecute_StaleWriteIsResolvedAgain(t *testing.T) {
	store := memory.New()
	a := uuid.New()
	adapter := &racingAdapter{Adapter: store.Contacts(), newer: contactAt(a, "Racer", t1000)}

	reg := syncer.NewRegistry()
	syncer.MustRegister(reg, kinds.Contact(adapter))
	coord := syncer.NewCoordinator(store, reg, clock.NewManual(t1200), setupTestLogger())

	f := &fixture{store: store}
	f.seedContact(t, contactAt(a, "Server", t1000))

	// клиент видел версию 10:00 и прислал правку с 10:30;
	// гонщик успел записать 10:01, повторное разрешение все равно принимает правку
	resp, err := coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "Client", ptr(t1000.Add(30*time.Minute)))},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, 1, adapter.races)

	stored := f.contact(t, a)
	assert.Equal(t, "Client", stored.FirstName)
	assert.Equal(t, t1000.Add(30*time.Minute), stored.UpdatedAt)
}

func TestExecute_StaleWriteBecomesConflict(t *testing.T) {
	store := memory.New()
	a := uuid.New()
	adapter := &racingAdapter{Adapter: store.Contacts(), newer: contactAt(a, "Racer", t1000)}

	reg := syncer.NewRegistry()
	syncer.MustRegister(reg, kinds.Contact(adapter))
	coord := syncer.NewCoordinator(store, reg, clock.NewManual(t1200), setupTestLogger())

	f := &fixture{store: store}
	f.seedContact(t, contactAt(a, "Server", t1000))

	// правка клиента с 10:00:30 проигрывает записи гонщика с 10:01
	resp, err := coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "Client", ptr(t1000.Add(30*time.Second)))},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, t1000.Add(time.Minute), resp.Conflicts[0].ServerUpdated)

	stored := f.contact(t, a)
	assert.Equal(t, "Racer", stored.FirstName)
}

func TestExecute_StaleAttemptsExhausted(t *testing.T) {
	store := memory.New()
	a := uuid.New()
	adapter := &racingAdapter{Adapter: store.Contacts(), newer: contactAt(a, "Racer", t1000), always: true}

	reg := syncer.NewRegistry()
	syncer.MustRegister(reg, kinds.Contact(adapter))
	coord := syncer.NewCoordinator(store, reg, clock.NewManual(t1200), setupTestLogger(),
		syncer.WithMaxResolveAttempts(2))

	f := &fixture{store: store}
	f.seedContact(t, contactAt(a, "Server", t1000))

	// клиент без updatedAt всегда получает Accept, но запись каждый раз успевает измениться
	_, err := coord.Execute(context.Background(), "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, a, "Client", nil)},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, syncer.ErrStore)
	assert.ErrorIs(t, err, syncer.ErrStale)

	stored := f.contact(t, a)
	assert.Equal(t, "Server", stored.FirstName, "failed call must not leave partial state")
}

// recorderStub собирает исходы синхронизаций
type recorderStub struct {
	outcomes []syncer.Outcome
}

func (r *recorderStub) ObserveSync(outcome syncer.Outcome, _ time.Duration, _ *syncer.Response) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestExecute_JournalAndRecorder(t *testing.T) {
	rec := &recorderStub{}
	store := memory.New()
	reg := syncer.NewRegistry()
	require.NoError(t, kinds.RegisterAll(reg, store))
	clk := clock.NewManual(t1200)
	coord := syncer.NewCoordinator(store, reg, clk, setupTestLogger(),
		syncer.WithJournal(store),
		syncer.WithRecorder(rec),
		syncer.WithMaxChanges(1),
	)
	ctx := context.Background()

	resp, err := coord.Execute(ctx, "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, uuid.New(), "A", nil)},
		},
	})
	require.NoError(t, err)

	// checkpoint в будущем относительно выданного serverTime только логируется
	clk.Advance(time.Minute)
	_, err = coord.Execute(ctx, "user-1", syncer.Request{Checkpoint: resp.ServerTime.Add(time.Hour)})
	require.NoError(t, err)

	_, err = coord.Execute(ctx, "user-1", syncer.Request{
		Changes: map[string][]json.RawMessage{
			"contacts": {contactChange(t, uuid.New(), "B", nil), contactChange(t, uuid.New(), "C", nil)},
		},
	})
	require.ErrorIs(t, err, syncer.ErrTooManyChanges)

	entries, err := store.SyncLog(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, t1200, entries[0].ServerTime)
	assert.Equal(t, 1, entries[0].AppliedCount)
	assert.Equal(t, resp.ServerTime.Add(time.Hour), entries[1].Checkpoint)

	last, found, err := store.LastServerTime(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, t1200.Add(time.Minute), last)

	assert.Equal(t, []syncer.Outcome{syncer.OutcomeOK, syncer.OutcomeOK, syncer.OutcomeRejected}, rec.outcomes)
}
