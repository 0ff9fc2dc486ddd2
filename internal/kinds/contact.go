package kinds

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/syncer"
	"github.com/iudanet/contactsync/internal/validation"
	"github.com/iudanet/contactsync/pkg/api"
)

// Contact описание типа "contact"
func Contact(adapter syncer.Adapter[*models.Contact]) syncer.Kind[*models.Contact] {
	return syncer.Kind[*models.Contact]{
		Name:       models.KindContact,
		Collection: api.CollectionContacts,
		Adapter:    adapter,
		Decode:     DecodeContact,
		Merge:      MergeContact,
		Equal:      EqualContact,
	}
}

// DecodeContact разбирает и валидирует контакт из запроса синхронизации
func DecodeContact(raw json.RawMessage) (syncer.ClientChange[*models.Contact], error) {
	var change syncer.ClientChange[*models.Contact]

	var payload api.ContactPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return change, &syncer.ValidationError{Err: fmt.Errorf("malformed contact: %w", err)}
	}
	if err := ValidateContact(&payload); err != nil {
		return change, &syncer.ValidationError{Err: err}
	}

	contact, err := ContactFromPayload(&payload)
	if err != nil {
		return change, &syncer.ValidationError{Err: err}
	}

	change.Record = contact
	change.UpdatedAt = clientStamp(payload.UpdatedAt)
	return change, nil
}

// ValidateContact обрезает пробелы и проверяет поля контакта.
// Обрезка идет до проверки: имя из одних пробелов не проходит required.
func ValidateContact(p *api.ContactPayload) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = trimPtr(p.Email)
	p.Phone = trimPtr(p.Phone)
	p.CompanyID = trimPtr(p.CompanyID)
	return validation.Struct(p)
}

// MergeContact копирует изменяемые поля клиента в копию серверной записи.
// id и createdAt остаются серверными.
func MergeContact(server, client *models.Contact) *models.Contact {
	merged := server.Clone()
	src := client.Clone()

	merged.FirstName = src.FirstName
	merged.LastName = src.LastName
	merged.Email = src.Email
	merged.Phone = src.Phone
	merged.CompanyID = src.CompanyID
	return merged
}

// EqualContact сравнивает изменяемые поля контактов
func EqualContact(a, b *models.Contact) bool {
	return a.FirstName == b.FirstName &&
		a.LastName == b.LastName &&
		sameString(a.Email, b.Email) &&
		sameString(a.Phone, b.Phone) &&
		sameID(a.CompanyID, b.CompanyID)
}
