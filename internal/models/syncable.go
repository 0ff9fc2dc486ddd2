package models

import (
	"time"

	"github.com/google/uuid"
)

// Syncable содержит общие поля всех сущностей, участвующих в синхронизации.
// Встраивается в каждую синхронизируемую сущность (Contact, Company).
type Syncable struct {
	CreatedAt time.Time `json:"createdAt"` // CreatedAt время создания, устанавливается только сервером
	UpdatedAt time.Time `json:"updatedAt"` // UpdatedAt время последнего изменения (authoritative версии)
	ID        uuid.UUID `json:"id"`        // ID глобально уникальный идентификатор (может генерироваться клиентом)
}

// Meta возвращает указатель на общие sync-поля сущности.
func (s *Syncable) Meta() *Syncable {
	return s
}

// Normalize приводит время к UTC с точностью до микросекунд.
// Это точность хранения в БД, поэтому все сравнения timestamp
// выполняются над нормализованными значениями.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
