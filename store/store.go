package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacentio/codex/blob"
	"github.com/jacentio/codex/cache"
)

// Store is the read and write path for entries. It consults the request
// cache and the cache regions before the backend and keeps them in line with
// writes.
type Store struct {
	backend  Backend
	regions  *cache.Regions
	registry *Registry
	conv     *Converter
	blobs    blob.Store
	config   Config
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithConfig sets the store configuration.
func WithConfig(cfg Config) Option {
	return func(s *Store) { s.config = cfg }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBlobStore sets the store used to remove attachments of deleted entries.
func WithBlobStore(b blob.Store) Option {
	return func(s *Store) {
		if b != nil {
			s.blobs = b
		}
	}
}

// WithClock sets the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.conv.now = now
		}
	}
}

// New creates a Store. A nil regions argument uses a private in-memory cache.
func New(backend Backend, regions *cache.Regions, registry *Registry, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		registry: registry,
		conv:     NewConverter(registry),
		blobs:    blob.Nop{},
		config:   DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.config.validate()
	if regions == nil {
		regions = cache.NewRegions(cache.NewMemory(),
			cache.DefaultPolicy(s.config.ShortTTL, s.config.LongTTL), s.logger)
	}
	s.regions = regions
	return s
}

// Registry returns the type registry.
func (s *Store) Registry() *Registry { return s.registry }

// Converter returns the entry converter.
func (s *Store) Converter() *Converter { return s.conv }

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.config }

// Get returns the entry stored under key. It returns ErrNotFound when the key
// is absent, its type is unknown, its payload is unreadable or the backend
// fails; all but the first are logged as warnings.
func (s *Store) Get(ctx context.Context, key EntryKey) (Entry, error) {
	sk, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}
	cacheKey := sk.String()
	rc, hasRC := RequestFromContext(ctx)

	var rec Record
	found := false
	if hasRC {
		rec, found = rc.get(cacheKey)
	}
	cached := found
	if !found {
		cached = s.regions.Load(ctx, cache.RegionEntity, cacheKey, &rec)
	}
	if !cached {
		rec, err = s.backend.Get(ctx, sk)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("get failed", "key", cacheKey, "error", err)
			}
			return nil, ErrNotFound
		}
	}

	e, err := s.conv.decode(rec)
	if err != nil {
		s.logger.Warn("dropping undecodable record", "key", cacheKey, "error", err)
		return nil, ErrNotFound
	}
	if !cached {
		s.regions.Store(ctx, cache.RegionEntity, cacheKey, rec)
	}
	if hasRC && !found {
		rc.put(cacheKey, rec)
	}
	return e, nil
}

// GetByField returns one entry of typ whose field equals value.
func (s *Store) GetByField(ctx context.Context, typ, field string, value any) (Entry, error) {
	kind := EscapeTypeName(typ)
	cacheKey := kind + "|" + FieldFilter(field, value).String()

	var rec Record
	cached := s.regions.Load(ctx, cache.RegionEntityByField, cacheKey, &rec)
	if !cached {
		var err error
		rec, err = s.backend.GetByField(ctx, kind, field, value)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("get by field failed", "type", typ, "field", field, "error", err)
			}
			return nil, ErrNotFound
		}
	}

	e, err := s.conv.decode(rec)
	if err != nil {
		s.logger.Warn("dropping undecodable record", "key", rec.Key.String(), "error", err)
		return nil, ErrNotFound
	}
	if !cached {
		s.regions.Store(ctx, cache.RegionEntityByField, cacheKey, rec)
	}
	return e, nil
}

// Put writes e. Writing a new key clears the id enumerations; updating an
// existing key leaves them to expire.
func (s *Store) Put(ctx context.Context, e Entry) error {
	rec, err := s.conv.ToRecord(e)
	if err != nil {
		return err
	}
	if _, err := s.write(ctx, rec); err != nil {
		return err
	}
	return nil
}

// Delete removes the entry under key together with its attachments and
// reports whether it existed.
func (s *Store) Delete(ctx context.Context, key EntryKey) (bool, error) {
	sk, err := EncodeKey(key)
	if err != nil {
		return false, err
	}

	var attachments []string
	if rec, err := s.backend.Get(ctx, sk); err == nil {
		if e, err := s.conv.decode(rec); err == nil {
			if a, ok := e.(Attachmenter); ok {
				attachments = a.Attachments()
			}
		}
	}

	existed, err := s.remove(ctx, sk)
	if err != nil {
		return false, err
	}

	for _, ref := range attachments {
		if err := s.blobs.Delete(ctx, ref); err != nil {
			s.logger.Warn("failed to delete attachment",
				"key", sk.String(),
				"blob", ref,
				"error", err,
			)
		}
	}
	return existed, nil
}

// write persists rec and applies the write invalidation rules.
func (s *Store) write(ctx context.Context, rec Record) (bool, error) {
	created, err := s.backend.Put(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("%w: put %s: %v", ErrStoreUnavailable, rec.Key, err)
	}
	cacheKey := rec.Key.String()
	s.regions.Store(ctx, cache.RegionEntity, cacheKey, rec)
	if rc, ok := RequestFromContext(ctx); ok {
		rc.put(cacheKey, rec)
	}
	if created {
		s.InvalidateCreated(ctx)
	}
	return created, nil
}

// remove deletes sk from the backend and applies the delete invalidation rules.
func (s *Store) remove(ctx context.Context, sk StoreKey) (bool, error) {
	existed, err := s.backend.Delete(ctx, sk)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, sk, err)
	}
	if rc, ok := RequestFromContext(ctx); ok {
		rc.forget(sk.String())
	}
	s.InvalidateDeleted(ctx, sk)
	return existed, nil
}

// InvalidateCreated applies the rules for a write that created a new key:
// id enumerations by type are cleared.
func (s *Store) InvalidateCreated(ctx context.Context) {
	s.regions.Clear(ctx, cache.RegionIDs)
}

// InvalidateChanged drops the cached record of an updated key.
func (s *Store) InvalidateChanged(ctx context.Context, sk StoreKey) {
	s.regions.Forget(ctx, cache.RegionEntity, sk.String())
}

// InvalidateDeleted applies the rules for a delete: the key's record is
// dropped and every id enumeration is cleared.
func (s *Store) InvalidateDeleted(ctx context.Context, sk StoreKey) {
	s.regions.Forget(ctx, cache.RegionEntity, sk.String())
	s.regions.Clear(ctx, cache.RegionIDs)
	s.regions.Clear(ctx, cache.RegionIDsByField)
}

// decodeAll converts records to entries, dropping and logging the ones whose
// type is unknown or whose payload is unreadable.
func (s *Store) decodeAll(recs []Record) []Entry {
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		e, err := s.conv.decode(rec)
		if err != nil {
			s.logger.Warn("dropping record from results", "key", rec.Key.String(), "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries
}
