package history

import "errors"

var (
	// ErrRunNotFound is returned when the requested run does not exist.
	ErrRunNotFound = errors.New("diagnostic run not found")

	// ErrRunExists is returned when a run with the same ID was already saved.
	ErrRunExists = errors.New("diagnostic run already exists")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
