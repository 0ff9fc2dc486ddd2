package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/contactsync/internal/models"
)

// LastServerTime returns the latest serverTime issued to the user
func (s *Storage) LastServerTime(ctx context.Context, principal string) (time.Time, bool, error) {
	query := `SELECT server_time FROM sync_log WHERE user_id = ? ORDER BY id DESC LIMIT 1`

	var serverTime int64
	err := s.db.QueryRowContext(ctx, query, principal).Scan(&serverTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get last server time: %w", err)
	}

	return fromMicro(serverTime), true, nil
}

// LatestServerTime returns the latest serverTime issued to anyone.
// Used on startup to keep server clock ahead of issued checkpoints.
func (s *Storage) LatestServerTime(ctx context.Context) (time.Time, error) {
	query := `SELECT COALESCE(MAX(server_time), 0) FROM sync_log`

	var serverTime int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&serverTime); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest server time: %w", err)
	}
	if serverTime == 0 {
		return time.Time{}, nil
	}

	return fromMicro(serverTime), nil
}

// AppendSyncLog appends sync log entry
func (s *Storage) AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error {
	query := `
		INSERT INTO sync_log (user_id, checkpoint, server_time, pulled_count, applied_count, conflict_count, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		entry.UserID,
		toMicro(entry.Checkpoint),
		toMicro(entry.ServerTime),
		entry.PulledCount,
		entry.AppliedCount,
		entry.ConflictCount,
		entry.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get sync log id: %w", err)
	}
	entry.ID = id

	return nil
}

// SyncLog returns sync log entries for a user in insertion order
func (s *Storage) SyncLog(ctx context.Context, principal string) ([]*models.SyncLogEntry, error) {
	query := `
		SELECT id, user_id, checkpoint, server_time, pulled_count, applied_count, conflict_count, error_count
		FROM sync_log
		WHERE user_id = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		e := &models.SyncLogEntry{}
		var checkpoint, serverTime int64
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&checkpoint,
			&serverTime,
			&e.PulledCount,
			&e.AppliedCount,
			&e.ConflictCount,
			&e.ErrorCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		e.Checkpoint = fromMicro(checkpoint)
		e.ServerTime = fromMicro(serverTime)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}
