package schema

import (
	"errors"
	"fmt"
	"slices"
)

// Registry holds the registered schemas of one application.
type Registry struct {
	byType map[string]*Schema
	order  []*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*Schema)}
}

// Register validates and freezes the given schemas.
//
// Relations are not resolved here since related types may be registered
// later; call Validate once every type is known.
func (r *Registry) Register(schemas ...*Schema) error {
	for _, s := range schemas {
		if s == nil {
			return newInvalid("", "", "nil schema")
		}
		if _, dup := r.byType[s.typeName]; dup {
			return newInvalid(s.typeName, "", "type %s already registered", s.typeName)
		}
		if s.registry != nil {
			return newInvalid(s.typeName, "", "schema %s belongs to another registry", s.typeName)
		}
		for _, other := range r.order {
			if other.name == s.name {
				return newInvalid(s.typeName, "", "collection %q already used by %s", s.name, other.typeName)
			}
		}
		if err := s.freeze(r); err != nil {
			return err
		}
		r.byType[s.typeName] = s
		r.order = append(r.order, s)
	}
	return nil
}

// MustRegister is Register for static declarations. It panics on error.
func (r *Registry) MustRegister(schemas ...*Schema) *Registry {
	if err := r.Register(schemas...); err != nil {
		panic(err)
	}
	return r
}

// Get returns the schema of typeName.
func (r *Registry) Get(typeName string) (*Schema, error) {
	if s, ok := r.byType[typeName]; ok {
		return s, nil
	}
	return nil, &SchemaError{
		Code:    ErrCodeUnknownType,
		Type:    typeName,
		Message: "type " + typeName + " is not registered",
	}
}

// MustGet returns the schema of typeName and panics if it is unknown.
func (r *Registry) MustGet(typeName string) *Schema {
	s, err := r.Get(typeName)
	if err != nil {
		panic(err)
	}
	return s
}

// Schemas returns all schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	return slices.Clone(r.order)
}

// Validate checks every class target and resolves every relation once.
// All problems are returned joined.
func (r *Registry) Validate() error {
	var errs []error
	for _, s := range r.order {
		for _, p := range s.props {
			if p.typ != TypeClass {
				continue
			}
			if _, err := r.Get(p.target); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
				continue
			}
			if p.IsBackReference() {
				if _, err := r.ResolveBackReference(p); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}
