package store

import "errors"

var (
	// ErrNotFound is returned when a key or field lookup matches no record.
	ErrNotFound = errors.New("codex: entry not found")

	// ErrInvalidKey is returned when a root-level key is built with an empty id.
	ErrInvalidKey = errors.New("codex: invalid entry key")

	// ErrUnresolvedType is returned when a stored kind has no registered type,
	// or the registered type cannot be instantiated.
	ErrUnresolvedType = errors.New("codex: unresolved entry type")

	// ErrDecodeFailure is returned when a record payload cannot be deserialized.
	ErrDecodeFailure = errors.New("codex: payload decode failed")

	// ErrStoreUnavailable wraps failures of the underlying store on writes.
	ErrStoreUnavailable = errors.New("codex: store unavailable")

	// ErrInvalidType is returned when registering an incomplete TypeSpec.
	ErrInvalidType = errors.New("codex: invalid type spec")

	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("codex: type already registered")
)
