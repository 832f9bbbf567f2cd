package domain

import "errors"

var (
	// ErrAlreadyExists marks a tolerated duplicate collection or index.
	ErrAlreadyExists = errors.New("already exists")

	// ErrCollectionNotConfigured is returned when an operation targets a
	// collection that was never provisioned.
	ErrCollectionNotConfigured = errors.New("collection not configured")

	ErrInvalidParams     = errors.New("invalid params")
	ErrInvalidField      = errors.New("invalid field name")
	ErrModelNotPersisted = errors.New("model is not persisted")
	ErrNotConnected      = errors.New("backend not connected")
)
