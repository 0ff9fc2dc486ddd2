package syncer

import (
	"context"
	"time"

	"github.com/iudanet/contactsync/internal/models"
)

// Journal журнал выполненных синхронизаций.
// Используется только для аудита: ошибки журнала не влияют на результат синхронизации.
type Journal interface {
	// LastServerTime возвращает последний serverTime, выданный principal.
	// found == false если синхронизаций еще не было
	LastServerTime(ctx context.Context, principal string) (last time.Time, found bool, err error)

	// AppendSyncLog добавляет запись о выполненной синхронизации
	AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error
}

// Outcome итог вызова Execute для метрик.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeStoreFail Outcome = "store_error"
)

// Recorder получает статистику синхронизаций (метрики).
type Recorder interface {
	ObserveSync(outcome Outcome, duration time.Duration, resp *Response)
}
