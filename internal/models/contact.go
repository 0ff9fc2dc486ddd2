package models

import "github.com/google/uuid"

// KindContact имя типа сущности для контактов
const KindContact = "contact"

// Contact представляет контакт (человека) в общей адресной книге.
type Contact struct {
	Email     *string    `json:"email"`     // Email опциональный адрес электронной почты
	Phone     *string    `json:"phone"`     // Phone опциональный номер телефона
	CompanyID *uuid.UUID `json:"companyId"` // CompanyID опциональная ссылка на компанию
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Syncable
}

// Clone создает глубокую копию контакта
func (c *Contact) Clone() *Contact {
	cp := *c
	if c.Email != nil {
		email := *c.Email
		cp.Email = &email
	}
	if c.Phone != nil {
		phone := *c.Phone
		cp.Phone = &phone
	}
	if c.CompanyID != nil {
		companyID := *c.CompanyID
		cp.CompanyID = &companyID
	}
	return &cp
}

// DisplayName возвращает имя контакта для вывода пользователю
func (c *Contact) DisplayName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}
