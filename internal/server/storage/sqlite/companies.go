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

const companyColumns = `id, name, website, created_at, updated_at`

// companyRepo адаптер таблицы companies
type companyRepo struct{}

// ChangedSince returns companies with updated_at > since ordered by updated_at, id
func (r *companyRepo) ChangedSince(ctx context.Context, s syncer.Session, since time.Time) ([]*models.Company, error) {
	tx, err := txFrom(s)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + companyColumns + ` FROM companies WHERE updated_at > ? ORDER BY updated_at, id`

	rows, err := tx.QueryContext(ctx, query, toMicro(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	companies := make([]*models.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return companies, nil
}

// Find retrieves company by id
func (r *companyRepo) Find(ctx context.Context, s syncer.Session, id uuid.UUID) (*models.Company, error) {
	tx, err := txFrom(s)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = ?`

	c, err := scanCompany(tx.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, syncer.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// Upsert inserts (expected == nil) or updates (expected != nil) company with compare-and-set on updated_at
func (r *companyRepo) Upsert(ctx context.Context, s syncer.Session, c *models.Company, expected *time.Time) error {
	tx, err := txFrom(s)
	if err != nil {
		return err
	}

	var result sql.Result
	if expected == nil {
		query := `
			INSERT INTO companies (` + companyColumns + `)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`
		result, err = tx.ExecContext(ctx, query,
			c.ID.String(),
			c.Name,
			nullString(c.Website),
			toMicro(c.CreatedAt),
			toMicro(c.UpdatedAt),
		)
	} else {
		query := `
			UPDATE companies
			SET name = ?, website = ?, updated_at = ?
			WHERE id = ? AND updated_at = ?
		`
		result, err = tx.ExecContext(ctx, query,
			c.Name,
			nullString(c.Website),
			toMicro(c.UpdatedAt),
			c.ID.String(),
			toMicro(*expected),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
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

// Delete deletes company by id
func (r *companyRepo) Delete(ctx context.Context, s syncer.Session, id uuid.UUID) error {
	tx, err := txFrom(s)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
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

func scanCompany(row rowScanner) (*models.Company, error) {
	var (
		c                    models.Company
		id                   string
		website              sql.NullString
		createdAt, updatedAt int64
	)

	if err := row.Scan(&id, &c.Name, &website, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid company id %q: %w", id, err)
	}
	c.ID = parsed
	c.Website = stringPtr(website)
	c.CreatedAt = fromMicro(createdAt)
	c.UpdatedAt = fromMicro(updatedAt)

	return &c, nil
}
