package api

import (
	"encoding/json"
	"time"
)

// Ключи коллекций в запросе синхронизации
const (
	CollectionContacts  = "contacts"
	CollectionCompanies = "companies"
)

// SyncRequest представляет запрос на синхронизацию от клиента.
// Сервер принимает любые зарегистрированные коллекции; неизвестные ключи игнорируются.
type SyncRequest struct {
	LastSync  *time.Time       `json:"lastSync,omitempty"`  // checkpoint; отсутствие означает полную выборку
	Contacts  []ContactPayload `json:"contacts,omitempty"`  // локальные изменения контактов
	Companies []CompanyPayload `json:"companies,omitempty"` // локальные изменения компаний
}

// ServerChange запись, измененная на сервере, с указанием типа
type ServerChange struct {
	Entity string          `json:"entity"` // "contact" | "company"
	Record json.RawMessage `json:"record"`
}

// Conflict отклоненное клиентское изменение
type Conflict struct {
	ClientUpdated *time.Time `json:"clientUpdated"`
	ServerUpdated time.Time  `json:"serverUpdated"`
	Entity        string     `json:"entity"`
	ID            string     `json:"id"`
}

// RecordError клиентское изменение, не прошедшее разбор или валидацию
type RecordError struct {
	ID     *string `json:"id,omitempty"`
	Entity string  `json:"entity"`
	Error  string  `json:"error"`
	Index  int     `json:"index"` // позиция в массиве коллекции запроса
}

// SyncResponse представляет ответ сервера на синхронизацию
type SyncResponse struct {
	ServerTime    time.Time      `json:"serverTime"`    // следующий checkpoint клиента
	ServerChanges []ServerChange `json:"serverChanges"` // изменения от сервера
	Conflicts     []Conflict     `json:"conflicts"`
	Errors        []RecordError  `json:"errors"`
}
