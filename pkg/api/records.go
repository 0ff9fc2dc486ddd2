package api

import "time"

// ContactPayload контакт в том виде, в котором его присылает клиент.
// ID может быть пустым (сервер сгенерирует), UpdatedAt отсутствует для
// записей, которые клиент еще не синхронизировал.
// ID и CompanyID разбираются uuid.Parse, регистр букв не важен.
type ContactPayload struct {
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Email     *string    `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone     *string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	CompanyID *string    `json:"companyId,omitempty"`
	ID        string     `json:"id"`
	FirstName string     `json:"firstName" validate:"required,max=100"`
	LastName  string     `json:"lastName" validate:"required,max=100"`
}

// CompanyPayload компания в том виде, в котором ее присылает клиент.
type CompanyPayload struct {
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Website   *string    `json:"website,omitempty" validate:"omitempty,url,max=2048"`
	ID        string     `json:"id"`
	Name      string     `json:"name" validate:"required,max=200"`
}
