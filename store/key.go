package store

import (
	"fmt"
	"net/url"
	"strings"
)

// EntryKey identifies a domain entry: an id, a type name and an optional parent.
// Keys are immutable; use NewKey to build one.
type EntryKey struct {
	id     string
	typ    string
	parent *EntryKey
}

// NewKey builds a key, lower-casing the id. A root key (no parent) must have
// a non-empty id.
func NewKey(id, typ string, parent *EntryKey) (EntryKey, error) {
	if id == "" && parent == nil {
		return EntryKey{}, fmt.Errorf("%w: root %q key has empty id", ErrInvalidKey, typ)
	}
	if typ == "" {
		return EntryKey{}, fmt.Errorf("%w: empty type for id %q", ErrInvalidKey, id)
	}
	k := EntryKey{id: strings.ToLower(id), typ: typ}
	if parent != nil {
		p := *parent
		k.parent = &p
	}
	return k, nil
}

// MustKey is like NewKey but panics on an invalid key.
func MustKey(id, typ string, parent *EntryKey) EntryKey {
	k, err := NewKey(id, typ, parent)
	if err != nil {
		panic(err)
	}
	return k
}

// ID returns the lower-cased id.
func (k EntryKey) ID() string { return k.id }

// Type returns the display type name.
func (k EntryKey) Type() string { return k.typ }

// Parent returns a copy of the parent key, or nil for root keys.
func (k EntryKey) Parent() *EntryKey {
	if k.parent == nil {
		return nil
	}
	p := *k.parent
	return &p
}

// IsZero reports whether k was never initialized.
func (k EntryKey) IsZero() bool { return k.typ == "" }

// Equal compares the full parent chain.
func (k EntryKey) Equal(o EntryKey) bool {
	if k.id != o.id || k.typ != o.typ {
		return false
	}
	if k.parent == nil || o.parent == nil {
		return k.parent == nil && o.parent == nil
	}
	return k.parent.Equal(*o.parent)
}

func (k EntryKey) String() string {
	s := k.typ + ":" + k.id
	if k.parent != nil {
		return k.parent.String() + "/" + s
	}
	return s
}

// StoreKey is the store-native form of an EntryKey.
type StoreKey struct {
	Kind   string
	Name   string
	Parent *StoreKey
}

// String renders the key as "kind#name" segments joined by "/", root first.
// Names are path-escaped so they never contain a separator.
func (k StoreKey) String() string {
	seg := k.Kind + "#" + url.PathEscape(k.Name)
	if k.Parent != nil {
		return k.Parent.String() + "/" + seg
	}
	return seg
}

// Equal compares the full parent chain.
func (k StoreKey) Equal(o StoreKey) bool {
	return k.String() == o.String()
}

// ParseStoreKey reverses StoreKey.String.
func ParseStoreKey(s string) (StoreKey, error) {
	if s == "" {
		return StoreKey{}, fmt.Errorf("%w: empty store key", ErrInvalidKey)
	}
	var cur *StoreKey
	for _, seg := range strings.Split(s, "/") {
		kind, escaped, ok := strings.Cut(seg, "#")
		if !ok || kind == "" {
			return StoreKey{}, fmt.Errorf("%w: malformed segment %q", ErrInvalidKey, seg)
		}
		name, err := url.PathUnescape(escaped)
		if err != nil {
			return StoreKey{}, fmt.Errorf("%w: segment %q: %v", ErrInvalidKey, seg, err)
		}
		cur = &StoreKey{Kind: kind, Name: name, Parent: cur}
	}
	return *cur, nil
}

// EscapeTypeName makes a display type name usable as a store kind.
func EscapeTypeName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

// UnescapeTypeName reverses EscapeTypeName.
func UnescapeTypeName(kind string) string {
	return strings.ReplaceAll(kind, "_", " ")
}

// EncodeKey converts an EntryKey into its StoreKey, parents first.
func EncodeKey(k EntryKey) (StoreKey, error) {
	if k.id == "" && k.parent == nil {
		return StoreKey{}, fmt.Errorf("%w: root %q key has empty id", ErrInvalidKey, k.typ)
	}
	sk := StoreKey{Kind: EscapeTypeName(k.typ), Name: strings.ToLower(k.id)}
	if k.parent != nil {
		p, err := EncodeKey(*k.parent)
		if err != nil {
			return StoreKey{}, err
		}
		sk.Parent = &p
	}
	return sk, nil
}

// DecodeKey converts a StoreKey back into an EntryKey. It returns false when
// the kind, or the kind of any parent, has no registered type; stored data can
// reference types the registry no longer knows about.
func (r *Registry) DecodeKey(sk StoreKey) (EntryKey, bool) {
	spec, ok := r.Lookup(UnescapeTypeName(sk.Kind))
	if !ok {
		return EntryKey{}, false
	}
	k := EntryKey{id: sk.Name, typ: spec.Name}
	if sk.Parent != nil {
		p, ok := r.DecodeKey(*sk.Parent)
		if !ok {
			return EntryKey{}, false
		}
		k.parent = &p
	}
	if k.id == "" && k.parent == nil {
		return EntryKey{}, false
	}
	return k, true
}
