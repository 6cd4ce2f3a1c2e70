// Package storetest provides an in-memory store.Backend and a ready-made
// registry for tests of code built on the store package.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/jacentio/codex/store"
)

// Op names a Backend operation for call counting.
type Op string

// Backend operations.
const (
	OpGet        Op = "get"
	OpGetByField Op = "get-by-field"
	OpQuery      Op = "query"
	OpKeysOnly   Op = "keys-only"
	OpScan       Op = "scan"
	OpPut        Op = "put"
	OpDelete     Op = "delete"
)

// Backend is an in-memory store.Backend. It is safe for concurrent use and
// counts calls per operation.
type Backend struct {
	mu      sync.Mutex
	records map[string]store.Record
	calls   map[Op]int
	errs    map[Op]error
	onCall  func(Op)
}

// NewBackend creates an empty Backend.
func NewBackend() *Backend {
	return &Backend{
		records: make(map[string]store.Record),
		calls:   make(map[Op]int),
		errs:    make(map[Op]error),
	}
}

// Seed stores rec as-is, bypassing call counting. Use it to plant records
// the current code would not produce (unknown kinds, legacy keys).
func (b *Backend) Seed(recs ...store.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range recs {
		b.records[rec.Key.String()] = rec.Clone()
	}
}

// Record returns the stored record under key.
func (b *Backend) Record(key store.StoreKey) (store.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[key.String()]
	return rec.Clone(), ok
}

// Len returns the number of stored records.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op Op) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// TotalCalls returns the number of invocations across all operations.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// ResetCalls zeroes the call counters.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	b.calls = make(map[Op]int)
	b.mu.Unlock()
}

// FailOn makes op return err until cleared with a nil err.
func (b *Backend) FailOn(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, op)
		return
	}
	b.errs[op] = err
}

// OnCall registers fn to run at the start of every operation.
func (b *Backend) OnCall(fn func(Op)) {
	b.mu.Lock()
	b.onCall = fn
	b.mu.Unlock()
}

// enter counts op and returns the injected error, if any. It must be called
// without b.mu held and returns with b.mu held.
func (b *Backend) enter(op Op) error {
	b.mu.Lock()
	fn := b.onCall
	b.mu.Unlock()
	if fn != nil {
		fn(op)
	}
	b.mu.Lock()
	b.calls[op]++
	return b.errs[op]
}

// Get implements store.Backend.
func (b *Backend) Get(_ context.Context, key store.StoreKey) (store.Record, error) {
	err := b.enter(OpGet)
	defer b.mu.Unlock()
	if err != nil {
		return store.Record{}, err
	}
	rec, ok := b.records[key.String()]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByField implements store.Backend.
func (b *Backend) GetByField(_ context.Context, kind, field string, value any) (store.Record, error) {
	err := b.enter(OpGetByField)
	defer b.mu.Unlock()
	if err != nil {
		return store.Record{}, err
	}
	matches := b.match(store.Query{Kind: kind, Filters: []store.Filter{store.FieldFilter(field, value)}})
	if len(matches) == 0 {
		return store.Record{}, store.ErrNotFound
	}
	return matches[0].Clone(), nil
}

// Query implements store.Backend.
func (b *Backend) Query(_ context.Context, q store.Query) ([]store.Record, error) {
	err := b.enter(OpQuery)
	defer b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	matches := b.match(q)
	if q.Offset >= len(matches) {
		return []store.Record{}, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matches) {
		matches = matches[:q.Limit]
	}
	out := make([]store.Record, len(matches))
	for i, rec := range matches {
		out[i] = rec.Clone()
	}
	return out, nil
}

// KeysOnly implements store.Backend.
func (b *Backend) KeysOnly(_ context.Context, kind, field string, value any) ([]store.StoreKey, error) {
	err := b.enter(OpKeysOnly)
	defer b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	matches := b.match(store.Query{Kind: kind, Filters: []store.Filter{store.FieldFilter(field, value)}})
	keys := make([]store.StoreKey, len(matches))
	for i, rec := range matches {
		keys[i] = rec.Clone().Key
	}
	return keys, nil
}

// Scan implements store.Backend in key order. The cursor is the last key
// returned, so records deleted or added behind it never shift the rest.
func (b *Backend) Scan(_ context.Context, kind, cursor string, limit int) ([]store.Record, string, error) {
	err := b.enter(OpScan)
	defer b.mu.Unlock()
	if err != nil {
		return nil, "", err
	}
	var keys []string
	for k, rec := range b.records {
		if rec.Key.Kind == kind && k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	next := ""
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
		next = keys[limit-1]
	}
	out := make([]store.Record, len(keys))
	for i, k := range keys {
		out[i] = b.records[k].Clone()
	}
	return out, next, nil
}

// Put implements store.Backend.
func (b *Backend) Put(_ context.Context, rec store.Record) (bool, error) {
	err := b.enter(OpPut)
	defer b.mu.Unlock()
	if err != nil {
		return false, err
	}
	k := rec.Key.String()
	_, exists := b.records[k]
	b.records[k] = rec.Clone()
	return !exists, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(_ context.Context, key store.StoreKey) (bool, error) {
	err := b.enter(OpDelete)
	defer b.mu.Unlock()
	if err != nil {
		return false, err
	}
	k := key.String()
	_, exists := b.records[k]
	delete(b.records, k)
	return exists, nil
}

// match returns the records satisfying q's kind, scope and filters, ordered
// by q.Order. Callers hold b.mu.
func (b *Backend) match(q store.Query) []store.Record {
	var out []store.Record
	for _, rec := range b.records {
		if rec.Key.Kind != q.Kind {
			continue
		}
		if q.Parent != nil && (rec.Key.Parent == nil || !rec.Key.Parent.Equal(*q.Parent)) {
			continue
		}
		ok := true
		for _, f := range q.Filters {
			if !f.Matches(rec) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		x, y := out[i], out[j]
		switch q.Order {
		case store.OrderSort:
			if x.Sort != y.Sort {
				return x.Sort < y.Sort
			}
		case store.OrderRecent:
			if !x.Changed.Equal(y.Changed) {
				return x.Changed.After(y.Changed)
			}
		}
		return x.Key.String() < y.Key.String()
	})
	return out
}

var _ store.Backend = (*Backend)(nil)
