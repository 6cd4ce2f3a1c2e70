package storetest

import (
	"github.com/jacentio/codex/catalog"
	"github.com/jacentio/codex/store"
)

// TypeAbstract is registered without a constructible entry, so records of
// it never decode.
const TypeAbstract = "Abstract"

// Registry returns a registry with the catalog types and TypeAbstract
// registered in table.
func Registry(table string) *store.Registry {
	r := store.NewRegistry(table)
	if err := catalog.Register(r, ""); err != nil {
		panic(err)
	}
	r.MustRegister(store.TypeSpec{
		Name: TypeAbstract,
		New:  func(string) store.Entry { return nil },
	})
	return r
}
