// Package data реализует локальное редактирование контактов и компаний.
// Все изменения сохраняются в локальной реплике с флагом dirty и
// отправляются на сервер при следующей синхронизации.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/client/storage"
	"github.com/iudanet/contactsync/internal/kinds"
	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/pkg/api"
)

// MinRefLen минимальная длина префикса id для поиска записи
const MinRefLen = 4

// ErrAmbiguousRef префикс id подходит к нескольким записям
var ErrAmbiguousRef = errors.New("id prefix matches more than one record")

// ConflictStore хранилище отклоненных версий
type ConflictStore interface {
	ListConflicts(ctx context.Context) ([]*storage.Conflict, error)
	GetConflict(ctx context.Context, key storage.RecordKey) (*storage.Conflict, error)
	DeleteConflict(ctx context.Context, key storage.RecordKey) error
}

// ContactInput поля нового контакта
type ContactInput struct {
	Email     *string
	Phone     *string
	CompanyID *string
	FirstName string
	LastName  string
}

// ContactPatch изменяемые поля контакта; nil означает "не менять",
// пустая строка очищает опциональное поле
type ContactPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Phone     *string
	CompanyID *string
}

// CompanyInput поля новой компании
type CompanyInput struct {
	Website *string
	Name    string
}

// CompanyPatch изменяемые поля компании
type CompanyPatch struct {
	Name    *string
	Website *string
}

// Service handles client-side data operations
type Service struct {
	records   storage.RecordStorage
	conflicts ConflictStore
	now       func() time.Time
}

// NewService creates a new data service
func NewService(records storage.RecordStorage, conflicts ConflictStore) *Service {
	return &Service{
		records:   records,
		conflicts: conflicts,
		now:       time.Now,
	}
}

// stamp возвращает updatedAt локальной правки: текущее время, но строго
// больше предыдущего значения, даже если часы клиента отстают
func (s *Service) stamp(prev time.Time) time.Time {
	now := models.Normalize(s.now())
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

// AddContact создает контакт локально
func (s *Service) AddContact(ctx context.Context, in ContactInput) (*storage.LocalContact, error) {
	contact, err := contactFromPayload(api.ContactPayload{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		CompanyID: in.CompanyID,
	})
	if err != nil {
		return nil, err
	}

	now := s.stamp(time.Time{})
	contact.ID = uuid.New()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	local := &storage.LocalContact{Contact: *contact, Dirty: true}
	if err := s.records.SaveContact(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}
	return local, nil
}

// EditContact изменяет контакт локально
func (s *Service) EditContact(ctx context.Context, id uuid.UUID, patch ContactPatch) (*storage.LocalContact, error) {
	existing, err := s.records.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := kinds.ContactToPayload(&existing.Contact)
	setString(&payload.FirstName, patch.FirstName)
	setString(&payload.LastName, patch.LastName)
	setOptional(&payload.Email, patch.Email)
	setOptional(&payload.Phone, patch.Phone)
	setOptional(&payload.CompanyID, patch.CompanyID)

	contact, err := contactFromPayload(payload)
	if err != nil {
		return nil, err
	}
	contact.CreatedAt = existing.CreatedAt
	contact.UpdatedAt = s.stamp(existing.UpdatedAt)

	local := &storage.LocalContact{Contact: *contact, Dirty: true}
	if err := s.records.SaveContact(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}
	return local, nil
}

// GetContact returns a local contact
func (s *Service) GetContact(ctx context.Context, id uuid.UUID) (*storage.LocalContact, error) {
	return s.records.GetContact(ctx, id)
}

// ListContacts returns all local contacts
func (s *Service) ListContacts(ctx context.Context) ([]*storage.LocalContact, error) {
	return s.records.ListContacts(ctx)
}

// FindContact ищет контакт по полному id или уникальному префиксу
func (s *Service) FindContact(ctx context.Context, ref string) (*storage.LocalContact, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.records.GetContact(ctx, id)
	}
	list, err := s.records.ListContacts(ctx)
	if err != nil {
		return nil, err
	}
	return findByPrefix(list, ref)
}

// AddCompany создает компанию локально
func (s *Service) AddCompany(ctx context.Context, in CompanyInput) (*storage.LocalCompany, error) {
	company, err := companyFromPayload(api.CompanyPayload{Name: in.Name, Website: in.Website})
	if err != nil {
		return nil, err
	}

	now := s.stamp(time.Time{})
	company.ID = uuid.New()
	company.CreatedAt = now
	company.UpdatedAt = now

	local := &storage.LocalCompany{Company: *company, Dirty: true}
	if err := s.records.SaveCompany(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to save company: %w", err)
	}
	return local, nil
}

// EditCompany изменяет компанию локально
func (s *Service) EditCompany(ctx context.Context, id uuid.UUID, patch CompanyPatch) (*storage.LocalCompany, error) {
	existing, err := s.records.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}

	payload := kinds.CompanyToPayload(&existing.Company)
	setString(&payload.Name, patch.Name)
	setOptional(&payload.Website, patch.Website)

	company, err := companyFromPayload(payload)
	if err != nil {
		return nil, err
	}
	company.CreatedAt = existing.CreatedAt
	company.UpdatedAt = s.stamp(existing.UpdatedAt)

	local := &storage.LocalCompany{Company: *company, Dirty: true}
	if err := s.records.SaveCompany(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to save company: %w", err)
	}
	return local, nil
}

// GetCompany returns a local company
func (s *Service) GetCompany(ctx context.Context, id uuid.UUID) (*storage.LocalCompany, error) {
	return s.records.GetCompany(ctx, id)
}

// ListCompanies returns all local companies
func (s *Service) ListCompanies(ctx context.Context) ([]*storage.LocalCompany, error) {
	return s.records.ListCompanies(ctx)
}

// FindCompany ищет компанию по полному id или уникальному префиксу
func (s *Service) FindCompany(ctx context.Context, ref string) (*storage.LocalCompany, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.records.GetCompany(ctx, id)
	}
	list, err := s.records.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	return findByPrefix(list, ref)
}

// PendingChanges возвращает число локальных изменений, не принятых сервером
func (s *Service) PendingChanges(ctx context.Context) (int, error) {
	contacts, err := s.records.ListContacts(ctx)
	if err != nil {
		return 0, err
	}
	companies, err := s.records.ListCompanies(ctx)
	if err != nil {
		return 0, err
	}
	return countDirty(contacts) + countDirty(companies), nil
}

// ListConflicts returns stored conflicts
func (s *Service) ListConflicts(ctx context.Context) ([]*storage.Conflict, error) {
	return s.conflicts.ListConflicts(ctx)
}

// ResubmitConflict восстанавливает отклоненную версию как новую локальную правку.
// Новая правка получает updatedAt позже серверной версии и будет отправлена
// при следующей синхронизации.
func (s *Service) ResubmitConflict(ctx context.Context, key storage.RecordKey) error {
	conflict, err := s.conflicts.GetConflict(ctx, key)
	if err != nil {
		return err
	}

	switch key.Entity {
	case models.KindContact:
		var rejected models.Contact
		if err := json.Unmarshal(conflict.Local, &rejected); err != nil {
			return fmt.Errorf("failed to decode rejected contact: %w", err)
		}
		prev := conflict.ServerUpdated
		if current, err := s.records.GetContact(ctx, key.ID); err == nil {
			rejected.CreatedAt = current.CreatedAt
			prev = latest(prev, current.UpdatedAt)
		}
		rejected.ID = key.ID
		rejected.UpdatedAt = s.stamp(prev)
		if err := s.records.SaveContact(ctx, &storage.LocalContact{Contact: rejected, Dirty: true}); err != nil {
			return fmt.Errorf("failed to save contact: %w", err)
		}
	case models.KindCompany:
		var rejected models.Company
		if err := json.Unmarshal(conflict.Local, &rejected); err != nil {
			return fmt.Errorf("failed to decode rejected company: %w", err)
		}
		prev := conflict.ServerUpdated
		if current, err := s.records.GetCompany(ctx, key.ID); err == nil {
			rejected.CreatedAt = current.CreatedAt
			prev = latest(prev, current.UpdatedAt)
		}
		rejected.ID = key.ID
		rejected.UpdatedAt = s.stamp(prev)
		if err := s.records.SaveCompany(ctx, &storage.LocalCompany{Company: rejected, Dirty: true}); err != nil {
			return fmt.Errorf("failed to save company: %w", err)
		}
	default:
		return fmt.Errorf("unknown entity %q", key.Entity)
	}

	return s.conflicts.DeleteConflict(ctx, key)
}

// DiscardConflict удаляет отклоненную версию; серверная версия остается
func (s *Service) DiscardConflict(ctx context.Context, key storage.RecordKey) error {
	return s.conflicts.DeleteConflict(ctx, key)
}

// contactFromPayload валидирует поля так же, как сервер
func contactFromPayload(p api.ContactPayload) (*models.Contact, error) {
	if err := kinds.ValidateContact(&p); err != nil {
		return nil, err
	}
	return kinds.ContactFromPayload(&p)
}

func companyFromPayload(p api.CompanyPayload) (*models.Company, error) {
	if err := kinds.ValidateCompany(&p); err != nil {
		return nil, err
	}
	return kinds.CompanyFromPayload(&p)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setOptional(dst **string, v *string) {
	if v == nil {
		return
	}
	if *v == "" {
		*dst = nil
		return
	}
	val := *v
	*dst = &val
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func countDirty[T storage.Local](records []T) int {
	n := 0
	for _, r := range records {
		if r.IsDirty() {
			n++
		}
	}
	return n
}

func findByPrefix[T storage.Local](records []T, ref string) (T, error) {
	var zero T

	ref = strings.ToLower(strings.TrimSpace(ref))
	if len(ref) < MinRefLen {
		return zero, fmt.Errorf("id prefix must be at least %d characters", MinRefLen)
	}

	var (
		found T
		n     int
	)
	for _, r := range records {
		if strings.HasPrefix(r.Meta().ID.String(), ref) {
			found = r
			n++
		}
	}
	switch n {
	case 0:
		return zero, storage.ErrRecordNotFound
	case 1:
		return found, nil
	default:
		return zero, ErrAmbiguousRef
	}
}
