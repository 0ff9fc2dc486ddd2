// Package clock предоставляет источник серверного времени для синхронизации.
package clock

import (
	"sync"
	"time"
)

// Clock источник текущего времени.
// Значения нормализованы в UTC с точностью до микросекунд.
type Clock interface {
	Now() time.Time
}

// Monotonic представляет часы, которые никогда не возвращают значение
// меньше или равное ранее выданному. Если системное время пошло назад
// (NTP коррекция) или два вызова попали в одну микросекунду,
// результат сдвигается на 1µs вперед от последнего значения.
type Monotonic struct {
	last   time.Time        // последнее выданное значение
	source func() time.Time // источник физического времени
	mu     sync.Mutex       // мьютекс для потокобезопасности
}

// NewMonotonic создает монотонные часы на основе time.Now.
func NewMonotonic() *Monotonic {
	return NewMonotonicWithSource(time.Now)
}

// NewMonotonicWithSource создает монотонные часы с заданным источником времени.
// Используется для тестирования.
func NewMonotonicWithSource(source func() time.Time) *Monotonic {
	return &Monotonic{source: source}
}

// Now возвращает следующее значение часов.
func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.source().UTC().Truncate(time.Microsecond)
	if !now.After(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now
	return now
}

// Observe сообщает часам о timestamp, уже записанном в хранилище.
// Следующий вызов Now вернет значение строго больше observed.
// Используется при старте сервера, чтобы не выдать serverTime меньше сохраненного.
func (m *Monotonic) Observe(observed time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	observed = observed.UTC().Truncate(time.Microsecond)
	if observed.After(m.last) {
		m.last = observed
	}
}

// Last возвращает последнее выданное значение без его изменения.
func (m *Monotonic) Last() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.last
}

// Manual часы с ручным управлением для тестов.
type Manual struct {
	now time.Time
	mu  sync.Mutex
}

// NewManual создает часы, показывающие заданное время.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now.UTC().Truncate(time.Microsecond)}
}

// Now возвращает текущее установленное время.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

// Set устанавливает время.
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now.UTC().Truncate(time.Microsecond)
}

// Advance сдвигает время вперед на d.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = m.now.Add(d)
	return m.now
}
