// Package entity is the class-instance form of a record.
//
// An Entity is an explicit tagged variant instead of an intercepting proxy.
// A placeholder created for a reference that was not joined carries only its
// primary key; every accessor checks the state and fails with an
// UnpopulatedAccessError where a proxy would have thrown.
package entity

import (
	"context"
	"errors"
	"maps"

	"github.com/roach88/docmap/internal/schema"
)

// State is the hydration state of an instance.
type State int

const (
	// Populated instances have every scalar field materialized.
	Populated State = iota

	// Unpopulated instances are placeholders holding only the primary key.
	Unpopulated

	// Partial instances were loaded with a projection.
	Partial
)

func (s State) String() string {
	switch s {
	case Populated:
		return "populated"
	case Unpopulated:
		return "unpopulated"
	case Partial:
		return "partial"
	}
	return "unknown"
}

// Coverage records how much of a relation an instance holds.
type Coverage int

const (
	// NotLoaded relations were never joined or set.
	NotLoaded Coverage = iota

	// Complete relations hold every related record.
	Complete

	// Restricted relations were joined with a filter or paging. They are
	// complete for that join only.
	Restricted
)

func (c Coverage) String() string {
	switch c {
	case NotLoaded:
		return "not loaded"
	case Complete:
		return "complete"
	case Restricted:
		return "restricted"
	}
	return "unknown"
}

// ErrDetached is returned when hydrating an instance that was not loaded
// through a database.
var ErrDetached = errors.New("entity is not attached to a database")

// Hydrator loads the remaining fields of a placeholder and upgrades it in place.
type Hydrator interface {
	Hydrate(ctx context.Context, e *Entity) error
}

// Entity is one instance of a schema.
type Entity struct {
	schema    *schema.Schema
	state     State
	values    map[string]any
	relations map[string]Coverage
	hydrator  Hydrator
	lastPK    any
}

// New returns a fresh, fully populated instance with defaults applied.
// Back-reference collections start empty and count as populated.
func New(s *schema.Schema) *Entity {
	e := &Entity{
		schema:    s,
		state:     Populated,
		values:    make(map[string]any),
		relations: make(map[string]Coverage),
	}
	for _, p := range s.Properties() {
		if v, ok := p.DefaultValue(); ok {
			e.values[p.Name()] = v
		}
		if p.IsBackReference() {
			e.relations[p.Name()] = Complete
			if p.IsArray() {
				e.values[p.Name()] = []*Entity{}
			}
		}
	}
	return e
}

// Load returns a populated instance for a record read from the store.
// No defaults are applied and no relation counts as populated.
func Load(s *schema.Schema, values map[string]any) *Entity {
	if values == nil {
		values = make(map[string]any)
	}
	return &Entity{
		schema:    s,
		state:     Populated,
		values:    values,
		relations: make(map[string]Coverage),
	}
}

// NewReference returns an unpopulated placeholder for pk.
func NewReference(s *schema.Schema, pk any) *Entity {
	e := &Entity{
		schema:    s,
		state:     Unpopulated,
		values:    map[string]any{s.PrimaryKeyName(): pk},
		relations: make(map[string]Coverage),
		lastPK:    pk,
	}
	return e
}

// NewPartial returns an empty instance in the partial state.
func NewPartial(s *schema.Schema) *Entity {
	return &Entity{
		schema:    s,
		state:     Partial,
		values:    make(map[string]any),
		relations: make(map[string]Coverage),
	}
}

// Schema returns the schema of the instance.
func (e *Entity) Schema() *schema.Schema { return e.schema }

// State returns the hydration state.
func (e *Entity) State() State { return e.state }

// IsPopulated reports whether every scalar field is materialized.
func (e *Entity) IsPopulated() bool { return e.state == Populated }

// IsRelationPopulated reports whether the relation name was joined or set.
func (e *Entity) IsRelationPopulated(name string) bool { return e.relations[name] != NotLoaded }

// RelationCoverage reports how much of the relation name was loaded.
func (e *Entity) RelationCoverage(name string) Coverage { return e.relations[name] }

// ID returns the primary key value. It never fails.
func (e *Entity) ID() any {
	return e.values[e.schema.PrimaryKeyName()]
}

// LastKnownPK returns the primary key the instance was last loaded with.
func (e *Entity) LastKnownPK() any { return e.lastPK }

// SetLastKnownPK records the primary key the store knows the instance by.
func (e *Entity) SetLastKnownPK(pk any) { e.lastPK = pk }

// Attach sets the hydrator used by Hydrate.
func (e *Entity) Attach(h Hydrator) { e.hydrator = h }

// Hydrator returns the attached hydrator, or nil.
func (e *Entity) Hydrator() Hydrator { return e.hydrator }

// Get returns the value of the named field.
//
// Reading a non-key field of a placeholder fails with a reference access
// error. Reading a back-reference that was never joined fails with a
// collection access error.
func (e *Entity) Get(name string) (any, error) {
	p, err := e.schema.LookupProperty(name)
	if err != nil {
		if name == e.schema.PrimaryKeyName() {
			return e.ID(), nil
		}
		return nil, err
	}
	if p.IsBackReference() {
		if e.relations[name] == NotLoaded {
			return nil, &UnpopulatedAccessError{Kind: CollectionAccess, Type: e.schema.TypeName(), Field: name}
		}
		return e.values[name], nil
	}
	if p.IsPrimary() {
		return e.values[name], nil
	}
	switch e.state {
	case Unpopulated:
		return nil, &UnpopulatedAccessError{Kind: ReferenceAccess, Type: e.schema.TypeName(), Field: name}
	case Partial:
		v, ok := e.values[name]
		if !ok {
			return nil, &UnpopulatedAccessError{Kind: ReferenceAccess, Type: e.schema.TypeName(), Field: name}
		}
		return v, nil
	}
	return e.values[name], nil
}

// MustGet is Get for fields known to be readable. It panics on error.
func (e *Entity) MustGet(name string) any {
	v, err := e.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Ref returns a forward reference or single back-reference value.
func (e *Entity) Ref(name string) (*Entity, error) {
	v, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	ref, _ := v.(*Entity)
	return ref, nil
}

// Collection returns an array back-reference or forward array value.
func (e *Entity) Collection(name string) ([]*Entity, error) {
	v, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	switch items := v.(type) {
	case []*Entity:
		return items, nil
	case []any:
		out := make([]*Entity, 0, len(items))
		for _, item := range items {
			if ref, ok := item.(*Entity); ok {
				out = append(out, ref)
			}
		}
		return out, nil
	}
	return nil, nil
}

// Set assigns a field. Assigning a back-reference marks it populated.
// A nil value is stored as null on nullable fields and unsets the others.
func (e *Entity) Set(name string, v any) error {
	p, err := e.schema.LookupProperty(name)
	if err != nil {
		return err
	}
	if v == nil && !p.IsNullable() {
		delete(e.values, name)
	} else {
		e.values[name] = v
	}
	if p.IsBackReference() {
		e.relations[name] = Complete
	}
	return nil
}

// MustSet is Set for fields known to exist. It panics on error.
func (e *Entity) MustSet(name string, v any) *Entity {
	if err := e.Set(name, v); err != nil {
		panic(err)
	}
	return e
}

// SetRelation attaches merged relation data with the given coverage. A nil
// value records a relation that was joined but is empty.
func (e *Entity) SetRelation(name string, v any, c Coverage) {
	if v == nil {
		delete(e.values, name)
	} else {
		e.values[name] = v
	}
	e.relations[name] = c
}

// Populate upgrades the instance in place with a full record. Existing
// fields not present in values are kept. Populated is terminal.
func (e *Entity) Populate(values map[string]any) {
	maps.Copy(e.values, values)
	e.state = Populated
}

// PopulatePartial merges projected fields. A placeholder becomes partial so
// the merged fields are readable; a populated instance stays populated.
func (e *Entity) PopulatePartial(values map[string]any) {
	maps.Copy(e.values, values)
	if e.state == Unpopulated {
		e.state = Partial
	}
}

// Raw returns the stored value of a field without access checks.
func (e *Entity) Raw(name string) (any, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Values returns a copy of the stored field values without access checks.
func (e *Entity) Values() map[string]any {
	return maps.Clone(e.values)
}

// Hydrate loads the remaining fields of an unpopulated instance through its
// database. Populated instances are left unchanged.
func Hydrate(ctx context.Context, e *Entity) error {
	if e.state == Populated {
		return nil
	}
	if e.hydrator == nil {
		return ErrDetached
	}
	return e.hydrator.Hydrate(ctx, e)
}
