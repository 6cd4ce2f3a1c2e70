package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TypeSpec declares how one entry type is stored. It is resolved once at
// registration so call sites never inspect concrete entry types.
type TypeSpec struct {
	// Name is the display type name (e.g., "Magic Item"). It may contain spaces
	// but not underscores, '#' or '/', which are reserved by the key encoding.
	Name string

	// SortField is the searchable field used for default ordering.
	SortField string

	// Table is the DynamoDB table holding entries of this type.
	// Default: the store-wide table from Config.
	Table string

	// New instantiates an empty entry with the given id. It returns nil for
	// abstract types that cannot be materialized.
	New func(id string) Entry
}

// Registry holds the known entry types.
type Registry struct {
	mu           sync.RWMutex
	defaultTable string
	byName       map[string]TypeSpec
}

// NewRegistry creates an empty Registry whose types default to table.
func NewRegistry(table string) *Registry {
	return &Registry{
		defaultTable: table,
		byName:       make(map[string]TypeSpec),
	}
}

// Register adds a type. It should be called during start-up for each type.
func (r *Registry) Register(spec TypeSpec) error {
	if spec.Name == "" || spec.New == nil {
		return fmt.Errorf("%w: name and constructor are required", ErrInvalidType)
	}
	if strings.ContainsAny(spec.Name, "_#/") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidType, spec.Name)
	}
	if spec.Table == "" {
		spec.Table = r.defaultTable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[spec.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, spec.Name)
	}
	r.byName[spec.Name] = spec
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(spec TypeSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (TypeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.byName[name]
	return spec, ok
}

// TableFor returns the table for a store kind, falling back to the default
// table for unknown kinds.
func (r *Registry) TableFor(kind string) string {
	if spec, ok := r.Lookup(UnescapeTypeName(kind)); ok {
		return spec.Table
	}
	return r.defaultTable
}

// Tables returns every distinct table in use, sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{r.defaultTable: true}
	tables := []string{r.defaultTable}
	for _, spec := range r.byName {
		if !seen[spec.Table] {
			seen[spec.Table] = true
			tables = append(tables, spec.Table)
		}
	}
	sort.Strings(tables)
	return tables
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate creates an empty entry of the named type. It returns false for
// unknown or abstract types.
func (r *Registry) Instantiate(name, id string) (Entry, bool) {
	spec, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	e := spec.New(id)
	if e == nil {
		return nil, false
	}
	return e, true
}
