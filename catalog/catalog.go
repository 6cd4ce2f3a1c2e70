// Package catalog defines the entry types of the game catalog: monsters,
// magic items, users and the products users own.
package catalog

import (
	"encoding/json"

	"github.com/jacentio/codex/store"
)

// Type names.
const (
	TypeMonster   = "Monster"
	TypeMagicItem = "Magic Item"
	TypeUser      = "User"
	TypeProduct   = "Product"
)

// Register adds every catalog type to r. An empty table uses the registry's
// default table.
func Register(r *store.Registry, table string) error {
	specs := []store.TypeSpec{
		{
			Name:      TypeMonster,
			SortField: "name",
			Table:     table,
			New:       func(id string) store.Entry { return NewMonster(id) },
		},
		{
			Name:      TypeMagicItem,
			SortField: "display name",
			Table:     table,
			New:       func(id string) store.Entry { return NewMagicItem(id) },
		},
		{
			Name:      TypeUser,
			SortField: "name",
			Table:     table,
			New:       func(id string) store.Entry { return NewUser(id) },
		},
		{
			Name:      TypeProduct,
			SortField: "name",
			Table:     table,
			New:       func(id string) store.Entry { return NewProduct(id, nil) },
		},
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// base carries the key handling shared by the catalog types.
type base struct {
	key store.EntryKey
}

func (b *base) Key() store.EntryKey        { return b.key }
func (b *base) UpdateKey(k store.EntryKey) { b.key = k }

func newKey(id, typ string, parent *store.EntryKey) store.EntryKey {
	k, _ := store.NewKey(id, typ, parent)
	return k
}

// Monster is a root entry with searchable, indexed and attachment fields.
type Monster struct {
	base
	Name  string   `json:"name"`
	Level int      `json:"level"`
	Tags  []string `json:"tags,omitempty"`
	Files []string `json:"files,omitempty"`
}

// NewMonster creates an empty Monster.
func NewMonster(id string) *Monster {
	return &Monster{base: base{key: newKey(id, TypeMonster, nil)}}
}

func (m *Monster) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *Monster) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

func (m *Monster) SearchableFields() map[string]any {
	return map[string]any{"name": m.Name, "level": m.Level}
}

func (m *Monster) IndexValues() map[string][]string {
	return map[string][]string{"tags": m.Tags}
}

func (m *Monster) Attachments() []string { return m.Files }

// MagicItem is a root entry whose type name and sort field contain spaces.
type MagicItem struct {
	base
	DisplayName string  `json:"display_name"`
	Rarity      string  `json:"rarity"`
	Weight      float64 `json:"weight"`
}

// NewMagicItem creates an empty MagicItem.
func NewMagicItem(id string) *MagicItem {
	return &MagicItem{base: base{key: newKey(id, TypeMagicItem, nil)}}
}

func (m *MagicItem) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *MagicItem) Unmarshal(b []byte) error { return json.Unmarshal(b, m) }

func (m *MagicItem) SearchableFields() map[string]any {
	return map[string]any{"display name": m.DisplayName, "rarity": m.Rarity, "weight": m.Weight}
}

func (m *MagicItem) IndexValues() map[string][]string {
	return map[string][]string{"rarity/group": {m.Rarity}}
}

// User is a root entry owning Products.
type User struct {
	base
	Name string `json:"name"`
}

// NewUser creates an empty User.
func NewUser(id string) *User {
	return &User{base: base{key: newKey(id, TypeUser, nil)}}
}

func (u *User) Marshal() ([]byte, error)         { return json.Marshal(u) }
func (u *User) Unmarshal(b []byte) error         { return json.Unmarshal(b, u) }
func (u *User) SearchableFields() map[string]any { return map[string]any{"name": u.Name} }
func (u *User) IndexValues() map[string][]string { return nil }

// Product is an instance of a base item owned by a User. The parent is not
// part of the payload; it is recovered from the store key.
type Product struct {
	base
	Name string `json:"name"`
	Base string `json:"base"`
}

// NewProduct creates an empty Product under owner.
func NewProduct(id string, owner *store.EntryKey) *Product {
	return &Product{base: base{key: newKey(id, TypeProduct, owner)}}
}

func (p *Product) Marshal() ([]byte, error) { return json.Marshal(p) }
func (p *Product) Unmarshal(b []byte) error { return json.Unmarshal(b, p) }

func (p *Product) SearchableFields() map[string]any {
	return map[string]any{"name": p.Name, "base": p.Base}
}

func (p *Product) IndexValues() map[string][]string { return nil }
