package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrForeignKeyViolation is returned when a referenced row is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConstraintViolation is returned when a check constraint rejects a row.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrOverlap is returned when the store itself refuses an overlapping
	// accepted booking, or aborts a transaction that raced with one.
	ErrOverlap = errors.New("persistence: overlapping accepted booking")
)
