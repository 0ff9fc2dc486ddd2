package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrRecordNotFound indicates that local record was not found
	ErrRecordNotFound = errors.New("record not found")

	// ErrConflictNotFound indicates that stored conflict was not found
	ErrConflictNotFound = errors.New("conflict not found")
)
