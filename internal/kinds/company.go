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

// Company описание типа "company"
func Company(adapter syncer.Adapter[*models.Company]) syncer.Kind[*models.Company] {
	return syncer.Kind[*models.Company]{
		Name:       models.KindCompany,
		Collection: api.CollectionCompanies,
		Adapter:    adapter,
		Decode:     DecodeCompany,
		Merge:      MergeCompany,
		Equal:      EqualCompany,
	}
}

// DecodeCompany разбирает и валидирует компанию из запроса синхронизации
func DecodeCompany(raw json.RawMessage) (syncer.ClientChange[*models.Company], error) {
	var change syncer.ClientChange[*models.Company]

	var payload api.CompanyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return change, &syncer.ValidationError{Err: fmt.Errorf("malformed company: %w", err)}
	}
	if err := ValidateCompany(&payload); err != nil {
		return change, &syncer.ValidationError{Err: err}
	}

	company, err := CompanyFromPayload(&payload)
	if err != nil {
		return change, &syncer.ValidationError{Err: err}
	}

	change.Record = company
	change.UpdatedAt = clientStamp(payload.UpdatedAt)
	return change, nil
}

// ValidateCompany обрезает пробелы и проверяет поля компании
func ValidateCompany(p *api.CompanyPayload) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Website = trimPtr(p.Website)
	return validation.Struct(p)
}

// MergeCompany копирует изменяемые поля клиента в копию серверной записи
func MergeCompany(server, client *models.Company) *models.Company {
	merged := server.Clone()
	merged.Name = client.Name
	merged.Website = client.Clone().Website
	return merged
}

// EqualCompany сравнивает изменяемые поля компаний
func EqualCompany(a, b *models.Company) bool {
	return a.Name == b.Name && sameString(a.Website, b.Website)
}
