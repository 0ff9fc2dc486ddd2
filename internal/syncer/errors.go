package syncer

import (
	"errors"
	"fmt"
)

// Sync errors
var (
	// ErrNotFound indicates that record was not found in store
	ErrNotFound = errors.New("record not found")

	// ErrStale indicates that record changed between read and write
	ErrStale = errors.New("record changed concurrently")

	// ErrStore indicates store read/write or commit failure; the call is safe to retry
	ErrStore = errors.New("store failure")

	// ErrInvalidRequest indicates that sync request envelope cannot be processed
	ErrInvalidRequest = errors.New("invalid sync request")

	// ErrTooManyChanges indicates that request carries more changes than allowed
	ErrTooManyChanges = errors.New("too many changes in one request")

	// ErrKindExists indicates that kind name or collection is already registered
	ErrKindExists = errors.New("kind already registered")

	// ErrRegistrySealed indicates registration attempt after startup
	ErrRegistrySealed = errors.New("registry is sealed")

	// ErrInvalidKind indicates incomplete kind definition
	ErrInvalidKind = errors.New("invalid kind definition")
)

// ValidationError ошибка разбора или валидации одного клиентского изменения.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
