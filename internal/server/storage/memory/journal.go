package memory

import (
	"context"
	"time"

	"github.com/iudanet/contactsync/internal/models"
)

// LastServerTime returns the latest serverTime issued to the user
func (st *Store) LastServerTime(_ context.Context, principal string) (time.Time, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for i := len(st.syncLog) - 1; i >= 0; i-- {
		if st.syncLog[i].UserID == principal {
			return st.syncLog[i].ServerTime, true, nil
		}
	}
	return time.Time{}, false, nil
}

// LatestServerTime returns the latest serverTime issued to anyone
func (st *Store) LatestServerTime(_ context.Context) (time.Time, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var latest time.Time
	for _, e := range st.syncLog {
		if e.ServerTime.After(latest) {
			latest = e.ServerTime
		}
	}
	return latest, nil
}

// AppendSyncLog appends sync log entry
func (st *Store) AppendSyncLog(_ context.Context, entry *models.SyncLogEntry) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.logSeqID++
	cp := *entry
	cp.ID = st.logSeqID
	st.syncLog = append(st.syncLog, &cp)
	entry.ID = cp.ID
	return nil
}

// SyncLog returns copy of the sync log entries for a user
func (st *Store) SyncLog(_ context.Context, principal string) ([]*models.SyncLogEntry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var result []*models.SyncLogEntry
	for _, e := range st.syncLog {
		if e.UserID == principal {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}
