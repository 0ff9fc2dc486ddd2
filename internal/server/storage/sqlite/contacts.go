package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/contactsync/internal/models"
	"github.com/iudanet/contactsync/internal/syncer"
)

const contactColumns = `id, first_name, last_name, email, phone, company_id, created_at, updated_at`

// contactRepo адаптер таблицы contacts
type contactRepo struct{}

// ChangedSince returns contacts with updated_at > since ordered by updated_at, id
func (r *contactRepo) ChangedSince(ctx context.Context, s syncer.Session, since time.Time) ([]*models.Contact, error) {
	tx, err := txFrom(s)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE updated_at > ? ORDER BY updated_at, id`

	rows, err := tx.QueryContext(ctx, query, toMicro(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	contacts := make([]*models.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return contacts, nil
}

// Find retrieves contact by id
func (r *contactRepo) Find(ctx context.Context, s syncer.Session, id uuid.UUID) (*models.Contact, error) {
	tx, err := txFrom(s)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ?`

	c, err := scanContact(tx.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, syncer.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// Upsert inserts (expected == nil) or updates (expected != nil) contact with compare-and-set on updated_at
func (r *contactRepo) Upsert(ctx context.Context, s syncer.Session, c *models.Contact, expected *time.Time) error {
	tx, err := txFrom(s)
	if err != nil {
		return err
	}

	var companyID sql.NullString
	if c.CompanyID != nil {
		companyID = sql.NullString{String: c.CompanyID.String(), Valid: true}
	}

	var result sql.Result
	if expected == nil {
		query := `
			INSERT INTO contacts (` + contactColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`
		result, err = tx.ExecContext(ctx, query,
			c.ID.String(),
			c.FirstName,
			c.LastName,
			nullString(c.Email),
			nullString(c.Phone),
			companyID,
			toMicro(c.CreatedAt),
			toMicro(c.UpdatedAt),
		)
	} else {
		query := `
			UPDATE contacts
			SET first_name = ?, last_name = ?, email = ?, phone = ?, company_id = ?, updated_at = ?
			WHERE id = ? AND updated_at = ?
		`
		result, err = tx.ExecContext(ctx, query,
			c.FirstName,
			c.LastName,
			nullString(c.Email),
			nullString(c.Phone),
			companyID,
			toMicro(c.UpdatedAt),
			c.ID.String(),
			toMicro(*expected),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return syncer.ErrStale
	}

	return nil
}

// Delete deletes contact by id
func (r *contactRepo) Delete(ctx context.Context, s syncer.Session, id uuid.UUID) error {
	tx, err := txFrom(s)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return syncer.ErrNotFound
	}

	return nil
}

// rowScanner общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c                    models.Contact
		id                   string
		email, phone, compID sql.NullString
		createdAt, updatedAt int64
	)

	if err := row.Scan(&id, &c.FirstName, &c.LastName, &email, &phone, &compID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid contact id %q: %w", id, err)
	}
	c.ID = parsed
	c.Email = stringPtr(email)
	c.Phone = stringPtr(phone)
	if compID.Valid {
		companyID, err := uuid.Parse(compID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid company id %q: %w", compID.String, err)
		}
		c.CompanyID = &companyID
	}
	c.CreatedAt = fromMicro(createdAt)
	c.UpdatedAt = fromMicro(updatedAt)

	return &c, nil
}
