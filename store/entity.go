package store

import (
	"maps"
	"reflect"
	"slices"
	"time"
)

// Entry is the contract every concrete entry type implements.
type Entry interface {
	// Key returns the entry's key.
	Key() EntryKey

	// UpdateKey replaces the entry's key, e.g., with parent information
	// recovered from the store key.
	UpdateKey(EntryKey)

	// Marshal serializes the full entry into its opaque payload.
	Marshal() ([]byte, error)

	// Unmarshal restores the entry from a payload produced by Marshal.
	Unmarshal([]byte) error

	// SearchableFields returns scalar fields used for equality lookups.
	SearchableFields() map[string]any

	// IndexValues returns secondary-index values keyed by index path.
	IndexValues() map[string][]string
}

// Attachmenter is implemented by entries that own blobs. The references are
// removed from the blob store when the entry is deleted.
type Attachmenter interface {
	Attachments() []string
}

// Record is the persisted form of an entry. Records are values: they are
// cloned whenever they cross a cache or store boundary and never mutated
// after construction.
type Record struct {
	// Key is the store-native key.
	Key StoreKey `json:"key"`

	// Fields holds searchable scalars (string, int64, float64, bool or nil).
	Fields map[string]any `json:"fields,omitempty"`

	// Index holds sorted, de-duplicated secondary-index values per path.
	Index map[string][]string `json:"index,omitempty"`

	// Sort is the sortable rendition of the type's sort field.
	Sort string `json:"sort,omitempty"`

	// Changed is the last write time.
	Changed time.Time `json:"changed"`

	// Payload is the serialized entry.
	Payload []byte `json:"payload"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	c.Key = cloneStoreKey(r.Key)
	c.Fields = maps.Clone(r.Fields)
	if r.Index != nil {
		c.Index = make(map[string][]string, len(r.Index))
		for path, values := range r.Index {
			c.Index[path] = slices.Clone(values)
		}
	}
	c.Payload = slices.Clone(r.Payload)
	return c
}

// SameContent reports whether r and o are equal field by field, ignoring
// Changed. Every rewrite restamps Changed, so it is the one excluded field.
func (r Record) SameContent(o Record) bool {
	if !r.Key.Equal(o.Key) || r.Sort != o.Sort {
		return false
	}
	if !slices.Equal(r.Payload, o.Payload) {
		return false
	}
	if len(r.Fields) != len(o.Fields) || len(r.Index) != len(o.Index) {
		return false
	}
	for name, v := range r.Fields {
		ov, ok := o.Fields[name]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	for path, values := range r.Index {
		ov, ok := o.Index[path]
		if !ok || !slices.Equal(values, ov) {
			return false
		}
	}
	return true
}

func cloneStoreKey(k StoreKey) StoreKey {
	c := k
	if k.Parent != nil {
		p := cloneStoreKey(*k.Parent)
		c.Parent = &p
	}
	return c
}
