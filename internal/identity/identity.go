// Package identity provides the session identity map.
//
// A Registry guarantees one live instance per (type, primary key). Keys are
// class-form primary keys normalised with wire.CanonicalKey, so "5" and 5.0
// never collide while an int64 and an integral float64 do.
//
// A Registry is not synchronised. Sessions are used from one flow of control
// at a time; two concurrent queries upgrading the same instance race, and the
// last write wins per field.
package identity

import (
	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

type key struct {
	typeName string
	pk       string
}

// Registry maps (type, primary key) to a live instance.
type Registry struct {
	entries map[key]*entity.Entity
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[key]*entity.Entity)}
}

func keyOf(s *schema.Schema, pk any) (key, bool) {
	if b, ok := pk.([]byte); ok {
		pk = wire.Binary{Data: b}
	}
	k, err := wire.CanonicalKey(pk)
	if err != nil {
		return key{}, false
	}
	return key{typeName: s.TypeName(), pk: k}, true
}

// Lookup returns the instance registered for pk.
func (r *Registry) Lookup(s *schema.Schema, pk any) (*entity.Entity, bool) {
	k, ok := keyOf(s, pk)
	if !ok {
		return nil, false
	}
	e, ok := r.entries[k]
	return e, ok
}

// Remember registers e under pk and records pk as its last known primary
// key. A nil or non-scalar pk is ignored.
func (r *Registry) Remember(s *schema.Schema, pk any, e *entity.Entity) {
	k, ok := keyOf(s, pk)
	if !ok {
		return
	}
	r.entries[k] = e
	e.SetLastKnownPK(pk)
}

// IsKnown reports whether e itself is the instance registered under its
// last known primary key.
func (r *Registry) IsKnown(s *schema.Schema, e *entity.Entity) bool {
	if e == nil {
		return false
	}
	known, ok := r.Lookup(s, e.LastKnownPK())
	return ok && known == e
}

// IsKnownByPK reports whether any instance is registered for pk.
func (r *Registry) IsKnownByPK(s *schema.Schema, pk any) bool {
	_, ok := r.Lookup(s, pk)
	return ok
}

// LastKnownPK returns the primary key the store knows e by. It can differ
// from e.ID() after the application changed the key in memory.
func (r *Registry) LastKnownPK(e *entity.Entity) any {
	return e.LastKnownPK()
}

// Forget drops the entry for e, if e is the registered instance.
func (r *Registry) Forget(s *schema.Schema, e *entity.Entity) {
	k, ok := keyOf(s, e.LastKnownPK())
	if !ok {
		return
	}
	if r.entries[k] == e {
		delete(r.entries, k)
	}
}

// Clear drops every entry. Later lookups produce fresh instances.
func (r *Registry) Clear() {
	clear(r.entries)
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	return len(r.entries)
}
