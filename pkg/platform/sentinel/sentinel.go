package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// They describe the state of a resource, not a validation failure:
// - ErrNotFound: entity does not exist in store
// - ErrAlreadyUsed: a uniqueness constraint already holds a row for this key
// - ErrCapacityExhausted: a bounded resource has no free slot left
// - ErrInvalidState: entity is not in the state the write expected
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyUsed       = errors.New("already used")
	ErrCapacityExhausted = errors.New("capacity exhausted")
	ErrInvalidState      = errors.New("invalid state")
	ErrUnavailable       = errors.New("unavailable")
)
