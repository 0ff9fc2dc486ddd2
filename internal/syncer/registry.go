package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Kind описание синхронизируемого типа сущности.
type Kind[R Record] struct {
	Adapter    Adapter[R]    // доступ к хранилищу
	Decode     DecodeFunc[R] // разбор и валидация клиентского изменения
	Merge      MergeFunc[R]  // копирование изменяемых полей при Accept
	Equal      EqualFunc[R]  // распознавание повтора уже примененного изменения; может быть nil
	Name       string        // имя типа в ответе ("contact")
	Collection string        // ключ массива в запросе ("contacts")
}

// kindHandler стирает параметр типа, чтобы координатор работал
// со списком разнотипных сущностей.
type kindHandler interface {
	name() string
	collection() string
	pull(ctx context.Context, s Session, since time.Time) ([]Change, error)
	push(ctx context.Context, env *pushEnv, s Session, raws []json.RawMessage, out *Response) error
}

// Registry отображение имени типа на его адаптер и функцию слияния.
// После Seal регистрация запрещена, и реестр читается без блокировок со стороны вызывающих.
type Registry struct {
	byName       map[string]kindHandler
	byCollection map[string]kindHandler
	kinds        []kindHandler
	mu           sync.RWMutex
	sealed       bool
}

// NewRegistry создает пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		byName:       make(map[string]kindHandler),
		byCollection: make(map[string]kindHandler),
	}
}

// Register добавляет тип сущности в реестр.
// Порядок регистрации определяет порядок обработки типов при синхронизации.
func Register[R Record](reg *Registry, kind Kind[R]) error {
	if kind.Name == "" || kind.Collection == "" {
		return fmt.Errorf("%w: name and collection are required", ErrInvalidKind)
	}
	if kind.Adapter == nil || kind.Decode == nil || kind.Merge == nil {
		return fmt.Errorf("%w: %s: adapter, decode and merge are required", ErrInvalidKind, kind.Name)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.sealed {
		return fmt.Errorf("register %s: %w", kind.Name, ErrRegistrySealed)
	}
	if _, ok := reg.byName[kind.Name]; ok {
		return fmt.Errorf("%w: name %q", ErrKindExists, kind.Name)
	}
	if _, ok := reg.byCollection[kind.Collection]; ok {
		return fmt.Errorf("%w: collection %q", ErrKindExists, kind.Collection)
	}

	h := &entry[R]{kind: kind}
	reg.kinds = append(reg.kinds, h)
	reg.byName[kind.Name] = h
	reg.byCollection[kind.Collection] = h
	return nil
}

// MustRegister как Register, но паникует при ошибке. Для использования при старте.
func MustRegister[R Record](reg *Registry, kind Kind[R]) {
	if err := Register(reg, kind); err != nil {
		panic(err)
	}
}

// Seal запрещает дальнейшую регистрацию.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
}

// Sealed сообщает, запечатан ли реестр.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sealed
}

// Names возвращает имена зарегистрированных типов в порядке регистрации.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for _, k := range r.kinds {
		names = append(names, k.name())
	}
	return names
}

// Collections возвращает ключи коллекций в порядке регистрации.
func (r *Registry) Collections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collections := make([]string, 0, len(r.kinds))
	for _, k := range r.kinds {
		collections = append(collections, k.collection())
	}
	return collections
}

// HasCollection проверяет, зарегистрирована ли коллекция.
func (r *Registry) HasCollection(collection string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byCollection[collection]
	return ok
}

func (r *Registry) handlers() []kindHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.kinds
}
