package repository

import "errors"

// Common store errors.
var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a compare-and-swap update on a
	// workflow execution loses against a concurrent writer.
	ErrVersionConflict = errors.New("execution version conflict")
)
