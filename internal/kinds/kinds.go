// Package kinds описывает синхронизируемые типы сущностей (контакты и компании)
// и регистрирует их в реестре синхронизации.
package kinds

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/syncer"
	"github.com/iudanet/contactsync/pkg/api"
)

// Adapters адаптеры хранилища для всех типов
type Adapters interface {
	Contacts() syncer.Adapter[*models.Contact]
	Companies() syncer.Adapter[*models.Company]
}

// RegisterAll регистрирует все типы сущностей в реестре.
// Компании регистрируются первыми: в ответе они идут раньше ссылающихся на них контактов.
func RegisterAll(reg *syncer.Registry, adapters Adapters) error {
	if err := syncer.Register(reg, Company(adapters.Companies())); err != nil {
		return fmt.Errorf("failed to register company kind: %w", err)
	}
	if err := syncer.Register(reg, Contact(adapters.Contacts())); err != nil {
		return fmt.Errorf("failed to register contact kind: %w", err)
	}
	return nil
}

// parseID разбирает id клиента; пустая строка означает "сгенерировать на сервере"
func parseID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("id must be a UUID")
	}
	return id, nil
}

// optional приводит пустую строку к nil
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// trimPtr обрезает пробелы, не меняя nil
func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// clientStamp нормализует timestamp клиента
func clientStamp(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := models.Normalize(*t)
	return &v
}

// ContactFromPayload преобразует клиентский контакт в модель
func ContactFromPayload(p *api.ContactPayload) (*models.Contact, error) {
	id, err := parseID(p.ID)
	if err != nil {
		return nil, err
	}

	c := &models.Contact{
		Syncable:  models.Syncable{ID: id},
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Email:     optional(p.Email),
		Phone:     optional(p.Phone),
	}
	if companyID := optional(p.CompanyID); companyID != nil {
		parsed, err := uuid.Parse(*companyID)
		if err != nil {
			return nil, fmt.Errorf("companyId must be a UUID")
		}
		c.CompanyID = &parsed
	}
	return c, nil
}

// CompanyFromPayload преобразует клиентскую компанию в модель
func CompanyFromPayload(p *api.CompanyPayload) (*models.Company, error) {
	id, err := parseID(p.ID)
	if err != nil {
		return nil, err
	}

	return &models.Company{
		Syncable: models.Syncable{ID: id},
		Name:     strings.TrimSpace(p.Name),
		Website:  optional(p.Website),
	}, nil
}

// ContactToPayload преобразует модель в клиентское изменение.
// updatedAt передается как есть; zero value означает "никогда не синхронизировался".
func ContactToPayload(c *models.Contact) api.ContactPayload {
	p := api.ContactPayload{
		ID:        c.ID.String(),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		UpdatedAt: stampPtr(c.UpdatedAt),
	}
	if c.CompanyID != nil {
		companyID := c.CompanyID.String()
		p.CompanyID = &companyID
	}
	return p
}

// CompanyToPayload преобразует модель компании в клиентское изменение
func CompanyToPayload(c *models.Company) api.CompanyPayload {
	return api.CompanyPayload{
		ID:        c.ID.String(),
		Name:      c.Name,
		Website:   c.Website,
		UpdatedAt: stampPtr(c.UpdatedAt),
	}
}

func stampPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := models.Normalize(t)
	return &v
}
