package statestore

import "errors"

var (
	// ErrStorageCorrupt indicates the backing state file is missing or not
	// valid structured data. This is fatal to the run.
	ErrStorageCorrupt = errors.New("state file missing or corrupt")

	// ErrEntityNotFound indicates a state change referenced an entity ID that
	// exists in no type bucket. The change is skipped and reported.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrDuplicateEntity indicates a new-entity registration collided with an
	// existing ID. The registration is skipped and reported.
	ErrDuplicateEntity = errors.New("duplicate entity id")
)
