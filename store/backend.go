package store

import (
	"context"
	"fmt"
	"strings"
)

// Backend is the underlying document store. Implementations must return
// ErrNotFound for missing single records and treat records as values.
type Backend interface {
	// Get fetches the record stored under key.
	Get(ctx context.Context, key StoreKey) (Record, error)

	// GetByField fetches one record of kind whose field equals value.
	GetByField(ctx context.Context, kind, field string, value any) (Record, error)

	// Query runs a kind query with optional parent scope, filters, ordering
	// and store-level pagination.
	Query(ctx context.Context, q Query) ([]Record, error)

	// KeysOnly returns the keys of records of kind whose field equals value.
	KeysOnly(ctx context.Context, kind, field string, value any) ([]StoreKey, error)

	// Scan reads up to limit records of kind (0 = no limit), resuming after
	// cursor ("" starts from the beginning). The order is backend-defined and
	// does not move records that are rewritten in place, nor does deleting a
	// record shift the ones after it. It returns the cursor to pass to the
	// next call, "" once the kind is exhausted.
	Scan(ctx context.Context, kind, cursor string, limit int) ([]Record, string, error)

	// Put writes rec, replacing any previous record. It reports whether the
	// key did not exist before.
	Put(ctx context.Context, rec Record) (created bool, err error)

	// Delete removes the record under key and reports whether it existed.
	Delete(ctx context.Context, key StoreKey) (bool, error)
}

// Order selects the ordering of query results.
type Order int

const (
	// OrderSort orders by the type's sort field, ascending.
	OrderSort Order = iota

	// OrderRecent orders by change time, newest first.
	OrderRecent
)

// Filter restricts a query. Field filters match a searchable field by
// equality; index filters match records whose index list contains Value.
type Filter struct {
	Field string
	Value any
	Index bool
}

// FieldFilter matches records whose searchable field equals value.
func FieldFilter(field string, value any) Filter {
	return Filter{Field: field, Value: normalizeScalar(value)}
}

// IndexFilter matches records whose index path contains value.
func IndexFilter(path, value string) Filter {
	return Filter{Field: path, Value: value, Index: true}
}

// Matches reports whether rec satisfies f.
func (f Filter) Matches(rec Record) bool {
	if f.Index {
		s, _ := f.Value.(string)
		for _, v := range rec.Index[f.Field] {
			if v == s {
				return true
			}
		}
		return false
	}
	return FieldString(rec.Fields[f.Field]) == FieldString(normalizeScalar(f.Value))
}

func (f Filter) String() string {
	op := "="
	if f.Index {
		op = "~"
	}
	return fmt.Sprintf("%s%s%s", f.Field, op, FieldString(normalizeScalar(f.Value)))
}

// Query describes a kind query.
type Query struct {
	// Kind is the store kind (escaped type name).
	Kind string

	// Parent restricts results to direct children of this key.
	Parent *StoreKey

	// Order selects the result ordering.
	Order Order

	// Offset skips this many matching records.
	Offset int

	// Limit caps the number of records returned (0 = no limit).
	Limit int

	// Filters must all match.
	Filters []Filter
}

// filterString renders filters as a stable cache key component.
func filterString(filters []Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var (
	propertyEscaper   = strings.NewReplacer("%", "%25", "_", "%5F", " ", "_")
	propertyUnescaper = strings.NewReplacer("%5F", "_", "%25", "%")
)

// EscapePropertyName makes a property name usable as a store attribute name:
// spaces become underscores. Literal underscores and percent signs are
// percent-encoded so the mapping stays reversible.
func EscapePropertyName(name string) string {
	return propertyEscaper.Replace(name)
}

// UnescapePropertyName reverses EscapePropertyName.
func UnescapePropertyName(name string) string {
	return propertyUnescaper.Replace(strings.ReplaceAll(name, "_", " "))
}
