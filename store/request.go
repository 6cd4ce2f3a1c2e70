package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RequestCache holds records read or written during one logical unit of
// work (e.g., one incoming request). It sits in front of the entity region
// and has no invalidation of its own, so it must never outlive that unit.
type RequestCache struct {
	id      string
	mu      sync.Mutex
	records map[string]Record
}

type requestCacheKey struct{}

// NewRequest attaches a fresh RequestCache to ctx. Call Close when the unit
// of work ends.
func NewRequest(ctx context.Context) (context.Context, *RequestCache) {
	rc := &RequestCache{
		id:      uuid.NewString(),
		records: make(map[string]Record),
	}
	return context.WithValue(ctx, requestCacheKey{}, rc), rc
}

// RequestFromContext returns the RequestCache attached to ctx, if any.
func RequestFromContext(ctx context.Context) (*RequestCache, bool) {
	rc, ok := ctx.Value(requestCacheKey{}).(*RequestCache)
	return rc, ok && rc != nil
}

// ID identifies the unit of work in logs.
func (rc *RequestCache) ID() string { return rc.id }

// Len returns the number of cached records.
func (rc *RequestCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.records)
}

// Close discards every cached record.
func (rc *RequestCache) Close() {
	rc.mu.Lock()
	rc.records = make(map[string]Record)
	rc.mu.Unlock()
}

func (rc *RequestCache) get(key string) (Record, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rec, ok := rc.records[key]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

func (rc *RequestCache) put(key string, rec Record) {
	rc.mu.Lock()
	rc.records[key] = rec.Clone()
	rc.mu.Unlock()
}

func (rc *RequestCache) forget(key string) {
	rc.mu.Lock()
	delete(rc.records, key)
	rc.mu.Unlock()
}
