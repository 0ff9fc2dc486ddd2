package syncer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Verdict результат разрешения одного клиентского изменения.
type Verdict int

const (
	// VerdictInsert запись отсутствует на сервере и будет создана
	VerdictInsert Verdict = iota + 1
	// VerdictAccept клиентская версия перезаписывает серверную
	VerdictAccept
	// VerdictConflict серверная версия новее, клиентское изменение отброшено
	VerdictConflict
)

func (v Verdict) String() string {
	switch v {
	case VerdictInsert:
		return "insert"
	case VerdictAccept:
		return "accept"
	case VerdictConflict:
		return "conflict"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// StampPolicy определяет, чей timestamp записывается в updatedAt.
type StampPolicy string

const (
	// StampClient сохраняет timestamp клиента, если он передан
	StampClient StampPolicy = "client"
	// StampServer всегда ставит серверное время при записи.
	// Сравнение для обнаружения конфликта по-прежнему использует timestamp клиента.
	StampServer StampPolicy = "server"
)

// ParseStampPolicy разбирает имя политики из конфигурации.
func ParseStampPolicy(s string) (StampPolicy, error) {
	switch StampPolicy(s) {
	case "", StampClient:
		return StampClient, nil
	case StampServer:
		return StampServer, nil
	default:
		return "", fmt.Errorf("unknown timestamp policy %q", s)
	}
}

// Observed состояние записи на сервере в момент чтения.
type Observed struct {
	UpdatedAt time.Time
	Exists    bool
}

// ChangeMeta то, что резолверу нужно знать о клиентском изменении.
type ChangeMeta struct {
	UpdatedAt *time.Time
	ID        uuid.UUID
	Unchanged bool // изменяемые поля совпадают с серверной версией
}

// Decision вердикт и timestamp, с которым запись должна быть сохранена.
type Decision struct {
	Stamp    time.Time // новый updatedAt (для Insert и Accept)
	Verdict  Verdict
	AssignID bool // сервер должен сгенерировать id (клиент прислал пустой)
	Skip     bool // Accept без записи: сервер уже хранит эти данные
}

// Resolver реализует last-write-wins с приоритетом сервера.
// Resolver не имеет состояния и безопасен для конкурентного использования.
type Resolver struct {
	Policy StampPolicy
}

// NewResolver создает резолвер с заданной политикой timestamp.
func NewResolver(policy StampPolicy) Resolver {
	return Resolver{Policy: policy}
}

// Resolve сравнивает серверную запись с клиентским изменением.
//
//   - записи нет на сервере: Insert
//   - клиент не прислал updatedAt: Accept с серверным временем
//   - server.UpdatedAt > change.UpdatedAt: Conflict
//   - server.UpdatedAt <= change.UpdatedAt: Accept с timestamp клиента
//
// Повтор уже принятого изменения (равные timestamp) дает Accept без конфликта,
// поэтому повторный вызов с теми же данными идемпотентен.
// При StampServer сохраненный updatedAt новее клиентского, и повтор выглядел бы
// конфликтом. Поэтому устаревшее изменение с теми же данными (Unchanged)
// принимается без записи.
func (r Resolver) Resolve(server Observed, change ChangeMeta, now time.Time) Decision {
	if !server.Exists {
		d := Decision{Verdict: VerdictInsert, AssignID: change.ID == uuid.Nil, Stamp: now}
		if change.UpdatedAt != nil && r.Policy != StampServer {
			d.Stamp = *change.UpdatedAt
		}
		return d
	}

	if change.UpdatedAt == nil {
		return Decision{Verdict: VerdictAccept, Stamp: forward(now, server.UpdatedAt)}
	}

	if server.UpdatedAt.After(*change.UpdatedAt) {
		if r.Policy == StampServer && change.Unchanged {
			return Decision{Verdict: VerdictAccept, Stamp: server.UpdatedAt, Skip: true}
		}
		return Decision{Verdict: VerdictConflict}
	}

	if r.Policy == StampServer {
		return Decision{Verdict: VerdictAccept, Stamp: forward(now, server.UpdatedAt)}
	}
	return Decision{Verdict: VerdictAccept, Stamp: *change.UpdatedAt}
}

// forward не дает updatedAt уйти назад относительно уже сохраненного значения.
func forward(stamp, current time.Time) time.Time {
	if stamp.After(current) {
		return stamp
	}
	return current.Add(time.Microsecond)
}
