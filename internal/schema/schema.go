package schema

import (
	"slices"

	"github.com/gosimple/slug"

	"github.com/roach88/docmap/internal/wire"
)

// Schema describes one entity type.
type Schema struct {
	typeName string
	name     string
	props    []*Property
	byName   map[string]*Property
	primary  *Property
	registry *Registry
}

// New builds a schema for typeName with properties in declaration order.
// The collection name defaults to the slug of typeName.
func New(typeName string, props ...*Property) *Schema {
	s := &Schema{
		typeName: typeName,
		name:     slug.Make(typeName),
		props:    props,
		byName:   make(map[string]*Property),
	}
	return s
}

// Named overrides the registered collection name.
func (s *Schema) Named(name string) *Schema {
	s.name = name
	return s
}

// TypeName returns the entity type name.
func (s *Schema) TypeName() string { return s.typeName }

// Name returns the registered collection name.
func (s *Schema) Name() string { return s.name }

// Registry returns the registry the schema belongs to, or nil.
func (s *Schema) Registry() *Registry { return s.registry }

// Property returns the named property or nil.
func (s *Schema) Property(name string) *Property {
	return s.byName[name]
}

// HasProperty reports whether name is declared.
func (s *Schema) HasProperty(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// LookupProperty returns the named property or an UNKNOWN_PROPERTY error.
func (s *Schema) LookupProperty(name string) (*Property, error) {
	if p, ok := s.byName[name]; ok {
		return p, nil
	}
	return nil, &SchemaError{
		Code:     ErrCodeUnknownProperty,
		Type:     s.typeName,
		Property: name,
		Message:  "property " + name + " not found on " + s.typeName,
	}
}

// Properties returns the properties in declaration order.
func (s *Schema) Properties() []*Property {
	return slices.Clone(s.props)
}

// PrimaryKey returns the primary key property, or nil for embeddable types.
func (s *Schema) PrimaryKey() *Property { return s.primary }

// PrimaryKeyName returns the primary key field name. Types without a
// declared primary key are keyed by the store-native _id.
func (s *Schema) PrimaryKeyName() string {
	if s.primary == nil {
		return wire.IDField
	}
	return s.primary.name
}

// References returns the forward references and back-references in
// declaration order.
func (s *Schema) References() []*Property {
	var out []*Property
	for _, p := range s.props {
		if p.IsRelation() {
			out = append(out, p)
		}
	}
	return out
}

// String returns the type name.
func (s *Schema) String() string { return s.typeName }

func (s *Schema) freeze(r *Registry) error {
	if s.typeName == "" {
		return newInvalid("", "", "type name is required")
	}
	if s.name == "" {
		return newInvalid(s.typeName, "", "collection name is required")
	}
	byName := make(map[string]*Property, len(s.props))
	var primary *Property
	for _, p := range s.props {
		if p == nil {
			return newInvalid(s.typeName, "", "nil property")
		}
		if p.name == "" {
			return newInvalid(s.typeName, "", "property name is required")
		}
		if p.owner != nil && p.owner != s {
			return newInvalid(s.typeName, p.name, "property %s already belongs to %s", p.name, p.owner.typeName)
		}
		if _, dup := byName[p.name]; dup {
			return newInvalid(s.typeName, p.name, "duplicate property %s", p.name)
		}
		if err := checkProperty(s.typeName, p); err != nil {
			return err
		}
		if p.primary {
			if primary != nil {
				return newInvalid(s.typeName, p.name, "multiple primary keys: %s and %s", primary.name, p.name)
			}
			primary = p
		}
		byName[p.name] = p
	}
	for _, p := range s.props {
		p.owner = s
	}
	s.byName = byName
	s.primary = primary
	s.registry = r
	return nil
}

func checkProperty(typeName string, p *Property) error {
	switch {
	case p.typ == TypeClass && p.target == "":
		return newInvalid(typeName, p.name, "class property %s has no target type", p.name)
	case p.typ == TypeEnum && len(p.members) == 0:
		return newInvalid(typeName, p.name, "enum property %s has no members", p.name)
	case p.ref != NoReference && p.typ != TypeClass:
		return newInvalid(typeName, p.name, "reference %s must be a class property", p.name)
	case p.ref == ForwardReference && p.cardinality == Map:
		return newInvalid(typeName, p.name, "reference %s cannot be a map", p.name)
	case p.ref != BackReference && (p.mappedBy != "" || p.via != ""):
		return newInvalid(typeName, p.name, "mappedBy and via are only valid on back-references")
	case p.primary && (p.ref != NoReference || p.cardinality != Single):
		return newInvalid(typeName, p.name, "primary key %s must be a single plain value", p.name)
	case p.parent && p.typ != TypeClass:
		return newInvalid(typeName, p.name, "parent reference %s must be a class property", p.name)
	}
	return nil
}
