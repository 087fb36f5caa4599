package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrStaleConnection is returned by ReplaceConnectionTokens when the row
	// version no longer matches, meaning a concurrent refresh or disconnect
	// won the race (0 rows updated).
	ErrStaleConnection = errors.New("connection row changed concurrently")
)
