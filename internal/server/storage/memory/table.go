package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/syncer"
)

// Table записи одного типа.
type Table[R syncer.Record] struct {
	rows  map[uuid.UUID]R
	clone func(R) R
}

// NewTable создает таблицу. clone должен возвращать глубокую копию записи:
// таблица никогда не отдает наружу и не хранит чужие указатели.
func NewTable[R syncer.Record](clone func(R) R) *Table[R] {
	return &Table[R]{
		rows:  make(map[uuid.UUID]R),
		clone: clone,
	}
}

type overlay[R syncer.Record] struct {
	table   *Table[R]
	written map[uuid.UUID]R
	deleted map[uuid.UUID]struct{}
}

func (o *overlay[R]) apply() {
	for id := range o.deleted {
		delete(o.table.rows, id)
	}
	for id, rec := range o.written {
		o.table.rows[id] = rec
	}
}

func (t *Table[R]) session(s syncer.Session) (*Session, error) {
	ms, ok := s.(*Session)
	if !ok {
		return nil, fmt.Errorf("unexpected session type %T", s)
	}
	if ms.closed {
		return nil, ErrSessionClosed
	}
	return ms, nil
}

func (t *Table[R]) overlay(ms *Session) *overlay[R] {
	if p, ok := ms.pending[t]; ok {
		return p.(*overlay[R])
	}
	o := &overlay[R]{
		table:   t,
		written: make(map[uuid.UUID]R),
		deleted: make(map[uuid.UUID]struct{}),
	}
	ms.pending[t] = o
	return o
}

// lookup возвращает запись с учетом изменений сессии
func (t *Table[R]) lookup(o *overlay[R], id uuid.UUID) (R, bool) {
	if rec, ok := o.written[id]; ok {
		return rec, true
	}
	if _, ok := o.deleted[id]; ok {
		var zero R
		return zero, false
	}
	rec, ok := t.rows[id]
	return rec, ok
}

// ChangedSince returns records with updatedAt > since ordered by updatedAt, id
func (t *Table[R]) ChangedSince(_ context.Context, s syncer.Session, since time.Time) ([]R, error) {
	ms, err := t.session(s)
	if err != nil {
		return nil, err
	}
	o := t.overlay(ms)

	result := make([]R, 0)
	seen := make(map[uuid.UUID]struct{}, len(o.written))
	collect := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		rec, ok := t.lookup(o, id)
		if ok && rec.Meta().UpdatedAt.After(since) {
			result = append(result, t.clone(rec))
		}
	}
	for id := range o.written {
		collect(id)
	}
	for id := range t.rows {
		collect(id)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Meta(), result[j].Meta()
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return result, nil
}

// Find returns record by id or syncer.ErrNotFound
func (t *Table[R]) Find(_ context.Context, s syncer.Session, id uuid.UUID) (R, error) {
	var zero R
	ms, err := t.session(s)
	if err != nil {
		return zero, err
	}
	rec, ok := t.lookup(t.overlay(ms), id)
	if !ok {
		return zero, syncer.ErrNotFound
	}
	return t.clone(rec), nil
}

// Upsert writes record if precondition on updatedAt holds
func (t *Table[R]) Upsert(_ context.Context, s syncer.Session, rec R, expected *time.Time) error {
	ms, err := t.session(s)
	if err != nil {
		return err
	}
	o := t.overlay(ms)
	id := rec.Meta().ID

	current, exists := t.lookup(o, id)
	switch {
	case expected == nil && exists:
		return syncer.ErrStale
	case expected != nil && !exists:
		return syncer.ErrStale
	case expected != nil && !current.Meta().UpdatedAt.Equal(*expected):
		return syncer.ErrStale
	}

	o.written[id] = t.clone(rec)
	delete(o.deleted, id)
	return nil
}

// Delete removes record by id
func (t *Table[R]) Delete(_ context.Context, s syncer.Session, id uuid.UUID) error {
	ms, err := t.session(s)
	if err != nil {
		return err
	}
	o := t.overlay(ms)
	if _, ok := t.lookup(o, id); !ok {
		return syncer.ErrNotFound
	}
	delete(o.written, id)
	o.deleted[id] = struct{}{}
	return nil
}
