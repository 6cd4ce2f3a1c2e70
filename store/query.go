package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jacentio/codex/cache"
)

// scope resolves an optional parent key into its store form and cache label.
func scope(parent *EntryKey) (*StoreKey, string, error) {
	if parent == nil {
		return nil, "", nil
	}
	sk, err := EncodeKey(*parent)
	if err != nil {
		return nil, "", err
	}
	return &sk, sk.String(), nil
}

func (s *Store) query(ctx context.Context, q Query) ([]Record, error) {
	recs, err := s.backend.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrStoreUnavailable, q.Kind, err)
	}
	return recs, nil
}

func (s *Store) scan(ctx context.Context, kind, cursor string, limit int) ([]Record, string, error) {
	recs, next, err := s.backend.Scan(ctx, kind, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("%w: scan %s: %v", ErrStoreUnavailable, kind, err)
	}
	return recs, next, nil
}

// List returns one page of typ entries under parent (nil for root entries
// of any parent), ordered by the type's sort field. Pagination is applied by
// the backend.
func (s *Store) List(ctx context.Context, typ string, parent *EntryKey, start, size int) ([]Entry, error) {
	psk, _, err := scope(parent)
	if err != nil {
		return nil, err
	}
	recs, err := s.query(ctx, Query{
		Kind:   EscapeTypeName(typ),
		Parent: psk,
		Order:  OrderSort,
		Offset: start,
		Limit:  size,
	})
	if err != nil {
		return nil, err
	}
	return s.decodeAll(recs), nil
}

// Find returns one page of typ entries matching every filter. Results are
// cached by filter list and only expire; writes do not invalidate them.
func (s *Store) Find(ctx context.Context, typ string, parent *EntryKey, start, size int, filters ...Filter) ([]Entry, error) {
	psk, label, err := scope(parent)
	if err != nil {
		return nil, err
	}
	kind := EscapeTypeName(typ)
	cacheKey := strings.Join([]string{
		kind, label, strconv.Itoa(start), strconv.Itoa(size), filterString(filters),
	}, "|")

	var recs []Record
	if !s.regions.Load(ctx, cache.RegionEntityList, cacheKey, &recs) {
		recs, err = s.query(ctx, Query{
			Kind:    kind,
			Parent:  psk,
			Order:   OrderSort,
			Offset:  start,
			Limit:   size,
			Filters: filters,
		})
		if err != nil {
			return nil, err
		}
		s.regions.Store(ctx, cache.RegionEntityList, cacheKey, recs)
	}
	return s.decodeAll(recs), nil
}

// ListByField returns every typ entry whose field equals value.
func (s *Store) ListByField(ctx context.Context, typ, field string, value any) ([]Entry, error) {
	return s.Find(ctx, typ, nil, 0, 0, FieldFilter(field, value))
}

// ListByIndex returns one page of typ entries whose index path contains group.
func (s *Store) ListByIndex(ctx context.Context, index, typ string, parent *EntryKey, group string, start, size int) ([]Entry, error) {
	return s.Find(ctx, typ, parent, start, size, IndexFilter(index, group))
}

// IDs returns the ids of all typ entries under parent, in sort order.
func (s *Store) IDs(ctx context.Context, typ string, parent *EntryKey) ([]string, error) {
	psk, label, err := scope(parent)
	if err != nil {
		return nil, err
	}
	kind := EscapeTypeName(typ)
	cacheKey := kind + "|" + label

	var ids []string
	if s.regions.Load(ctx, cache.RegionIDs, cacheKey, &ids) {
		return ids, nil
	}
	recs, err := s.query(ctx, Query{Kind: kind, Parent: psk, Order: OrderSort})
	if err != nil {
		return nil, err
	}
	ids = make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Key.Name)
	}
	s.regions.Store(ctx, cache.RegionIDs, cacheKey, ids)
	return ids, nil
}

// IDsByField returns the ids of typ entries whose field equals value.
func (s *Store) IDsByField(ctx context.Context, typ, field string, value any) ([]string, error) {
	kind := EscapeTypeName(typ)
	cacheKey := kind + "|" + FieldFilter(field, value).String()

	var ids []string
	if s.regions.Load(ctx, cache.RegionIDsByField, cacheKey, &ids) {
		return ids, nil
	}
	keys, err := s.backend.KeysOnly(ctx, kind, field, value)
	if err != nil {
		return nil, fmt.Errorf("%w: keys %s: %v", ErrStoreUnavailable, kind, err)
	}
	ids = make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.Name)
	}
	s.regions.Store(ctx, cache.RegionIDsByField, cacheKey, ids)
	return ids, nil
}

// Recent returns up to size typ entries under parent, newest change first.
func (s *Store) Recent(ctx context.Context, typ string, parent *EntryKey, size int) ([]Entry, error) {
	psk, label, err := scope(parent)
	if err != nil {
		return nil, err
	}
	kind := EscapeTypeName(typ)
	cacheKey := kind + "|" + label + "|" + strconv.Itoa(size)

	var recs []Record
	if !s.regions.Load(ctx, cache.RegionRecent, cacheKey, &recs) {
		recs, err = s.query(ctx, Query{Kind: kind, Parent: psk, Order: OrderRecent, Limit: size})
		if err != nil {
			return nil, err
		}
		s.regions.Store(ctx, cache.RegionRecent, cacheKey, recs)
	}
	return s.decodeAll(recs), nil
}

// DistinctValues returns the sorted set of non-empty values of field across
// all typ entries. It scans the whole kind and is cached with the long TTL.
func (s *Store) DistinctValues(ctx context.Context, typ, field string) ([]string, error) {
	kind := EscapeTypeName(typ)
	cacheKey := kind + "|" + field

	var values []string
	if s.regions.Load(ctx, cache.RegionDistinct, cacheKey, &values) {
		return values, nil
	}
	recs, err := s.query(ctx, Query{Kind: kind, Order: OrderSort})
	if err != nil {
		return nil, err
	}
	values = make([]string, 0)
	for _, rec := range recs {
		if v := FieldString(rec.Fields[field]); v != "" {
			values = append(values, v)
		}
	}
	slices.Sort(values)
	values = slices.Compact(values)
	s.regions.Store(ctx, cache.RegionDistinct, cacheKey, values)
	return values, nil
}

// Projection returns, for every typ entry in sort order, the values of fields.
// It scans the whole kind and is cached with the long TTL.
func (s *Store) Projection(ctx context.Context, typ string, fields ...string) ([][]string, error) {
	kind := EscapeTypeName(typ)
	cacheKey := kind + "|" + strings.Join(fields, ",")

	var rows [][]string
	if s.regions.Load(ctx, cache.RegionProjection, cacheKey, &rows) {
		return rows, nil
	}
	recs, err := s.query(ctx, Query{Kind: kind, Order: OrderSort})
	if err != nil {
		return nil, err
	}
	rows = make([][]string, 0, len(recs))
	for _, rec := range recs {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = FieldString(rec.Fields[f])
		}
		rows = append(rows, row)
	}
	s.regions.Store(ctx, cache.RegionProjection, cacheKey, rows)
	return rows, nil
}

// OwnersOf groups the entries referencing base id by their parent: the
// result maps each parent id to the ids of its entries. Entries are those
// of the configured owner type whose owner field equals id.
func (s *Store) OwnersOf(ctx context.Context, id string) (map[string][]string, error) {
	kind := EscapeTypeName(s.config.OwnerType)
	keys, err := s.backend.KeysOnly(ctx, kind, s.config.OwnerField, id)
	if err != nil {
		return nil, fmt.Errorf("%w: keys %s: %v", ErrStoreUnavailable, kind, err)
	}
	owners := make(map[string][]string)
	for _, k := range keys {
		if k.Parent == nil {
			continue
		}
		owners[k.Parent.Name] = append(owners[k.Parent.Name], k.Name)
	}
	return owners, nil
}
