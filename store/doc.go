// Package store provides a cached, hierarchical entry store on top of a
// pluggable record backend, with a DynamoDB implementation.
//
// Codex is designed for read-heavy catalogs whose entries are written rarely
// and listed, filtered and projected often. Reads go through a request-scoped
// cache and a set of expiring cache regions before they reach the backend.
//
// # Key Features
//
//   - Hierarchical keys: an entry may live under a parent entry
//   - Typed entries resolved through a [Registry] of [TypeSpec]s
//   - Read-through caching per region with write invalidation
//   - Filtering by searchable fields and by index path groups
//   - Deadline-bounded refresh of stored records via [Reconciler]
//   - Attachment cleanup through a blob store on delete
//
// # Entry Interface
//
// All entries implement the [Entry] interface:
//
//	type Entry interface {
//	    Key() EntryKey
//	    UpdateKey(EntryKey)
//	    Marshal() ([]byte, error)
//	    Unmarshal([]byte) error
//	    SearchableFields() map[string]any
//	    IndexValues() map[string][]string
//	}
//
// Entries owning blobs also implement [Attachmenter].
//
// # Caching
//
// Writes that create a key clear the id enumerations; updates only replace
// the cached record, so list and id regions may serve stale membership until
// they expire. Use [Store.InvalidateChanged] and friends from a stream
// handler to apply the same rules for writes made by other processes.
//
// # Configuration
//
// Use [DefaultConfig] or [LoadConfig] to read CODEX_* environment variables:
//
//	cfg, err := store.LoadConfig()
//	s := store.New(backend, regions, registry, store.WithConfig(cfg))
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - entry doesn't exist or can't be decoded
//   - [ErrInvalidKey] - key is malformed
//   - [ErrUnresolvedType] - type name is not registered
//   - [ErrDecodeFailure] - stored payload can't be read
//   - [ErrStoreUnavailable] - the backend failed
//   - [ErrInvalidType], [ErrDuplicateType] - registration rejected
package store
