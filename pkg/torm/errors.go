package torm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEntity is returned when a value is not a pointer to a mapped struct.
	ErrInvalidEntity = errors.New("entity must be a non-nil pointer to a model struct")
	// ErrMissingField is returned when a required field is empty, at staging time
	// or from a not-null violation during commit.
	ErrMissingField = errors.New("missing required field")
	// ErrNotPersisted is returned when updating or deleting an entity that has no id yet.
	ErrNotPersisted     = errors.New("entity is not persisted")
	ErrAlreadyPersisted = errors.New("entity is already persisted")
	// ErrPendingDelete is returned when an entity staged for delete is staged for update.
	ErrPendingDelete = errors.New("entity is pending delete")
	// ErrIDImmutable is returned when an entity's id differs from the one storage assigned.
	ErrIDImmutable = errors.New("id is immutable once assigned")
	// ErrStale is returned when an update or delete matched no row.
	ErrStale           = errors.New("row no longer exists")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrUnknownColumn   = errors.New("unknown column")
)

// CommitError describes the staged operation that made a commit fail. The
// transaction has been rolled back when it is returned.
type CommitError struct {
	Op    Op
	Table string
	Err   error
}

func (e *CommitError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("commit: %v", e.Err)
	}
	return fmt.Sprintf("commit: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
