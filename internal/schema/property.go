package schema

import (
	"slices"

	"github.com/google/uuid"
)

// Property describes one field of an entity type.
//
// Properties are built with the constructor functions (String, UUID, Class,
// ...) and the chainable modifiers below. Modifiers mutate the receiver and
// must not be called once the owning schema has been registered.
type Property struct {
	name        string
	typ         Type
	cardinality Cardinality
	target      string
	members     []string

	ref      ReferenceKind
	mappedBy string
	via      string

	primary  bool
	index    bool
	optional bool
	nullable bool
	parent   bool

	defaultFn func() any

	owner *Schema
}

func newProperty(name string, t Type) *Property {
	return &Property{name: name, typ: t}
}

// Any declares an untyped property. Values pass through conversion by identity.
func Any(name string) *Property { return newProperty(name, TypeAny) }

// String declares a string property.
func String(name string) *Property { return newProperty(name, TypeString) }

// Number declares a floating point property.
func Number(name string) *Property { return newProperty(name, TypeNumber) }

// Integer declares an integer property.
func Integer(name string) *Property { return newProperty(name, TypeInteger) }

// Boolean declares a boolean property.
func Boolean(name string) *Property { return newProperty(name, TypeBoolean) }

// Date declares a timestamp property.
func Date(name string) *Property { return newProperty(name, TypeDate) }

// UUID declares a v4 UUID property, stored as binary subtype 4.
func UUID(name string) *Property { return newProperty(name, TypeUUID) }

// ObjectID declares a store-native identifier property.
func ObjectID(name string) *Property { return newProperty(name, TypeObjectID) }

// Binary declares a byte payload property.
func Binary(name string) *Property { return newProperty(name, TypeBinary) }

// Enum declares a string property restricted to members.
func Enum(name string, members ...string) *Property {
	p := newProperty(name, TypeEnum)
	p.members = slices.Clone(members)
	return p
}

// Class declares a property whose value is an instance of target. Without
// Reference or BackReference the value is embedded.
func Class(name, target string) *Property {
	p := newProperty(name, TypeClass)
	p.target = target
	return p
}

// BackReferenceOption configures a back-reference.
type BackReferenceOption func(*Property)

// MappedBy names the forward property on the related type explicitly.
func MappedBy(name string) BackReferenceOption {
	return func(p *Property) { p.mappedBy = name }
}

// Via routes the relation through a pivot entity type.
func Via(pivotType string) BackReferenceOption {
	return func(p *Property) { p.via = pivotType }
}

// Array marks the property as holding a list of values.
func (p *Property) Array() *Property { p.cardinality = Array; return p }

// Map marks the property as holding a string-keyed map of values.
func (p *Property) Map() *Property { p.cardinality = Map; return p }

// Primary marks the property as the primary key.
func (p *Property) Primary() *Property { p.primary = true; return p }

// Index marks the property as indexed.
func (p *Property) Index() *Property { p.index = true; return p }

// Optional marks the property as optional.
func (p *Property) Optional() *Property { p.optional = true; return p }

// Nullable allows null as a value.
func (p *Property) Nullable() *Property { p.nullable = true; return p }

// Parent marks an embedded class property as a reference to its parent.
// Parent references are never persisted.
func (p *Property) Parent() *Property { p.parent = true; return p }

// Default sets a function producing the value of fresh instances.
func (p *Property) Default(fn func() any) *Property { p.defaultFn = fn; return p }

// Reference marks the property as a forward reference.
func (p *Property) Reference() *Property { p.ref = ForwardReference; return p }

// BackReference marks the property as the inverse side of a relation.
func (p *Property) BackReference(opts ...BackReferenceOption) *Property {
	p.ref = BackReference
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewUUID returns a random v4 UUID string. It is meant for Default.
func NewUUID() any {
	return uuid.NewString()
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Type returns the semantic value type.
func (p *Property) Type() Type { return p.typ }

// Cardinality returns single, array or map.
func (p *Property) Cardinality() Cardinality { return p.cardinality }

// IsArray reports whether the property holds a list.
func (p *Property) IsArray() bool { return p.cardinality == Array }

// IsMap reports whether the property holds a map.
func (p *Property) IsMap() bool { return p.cardinality == Map }

// Target returns the referenced or embedded type name for class properties.
func (p *Property) Target() string { return p.target }

// EnumMembers returns the allowed enum values.
func (p *Property) EnumMembers() []string { return slices.Clone(p.members) }

// ReferenceKind returns the relation side of the property.
func (p *Property) ReferenceKind() ReferenceKind { return p.ref }

// IsReference reports whether the property is a forward reference.
func (p *Property) IsReference() bool { return p.ref == ForwardReference }

// IsBackReference reports whether the property is a back-reference.
func (p *Property) IsBackReference() bool { return p.ref == BackReference }

// IsRelation reports whether the property is either side of a relation.
func (p *Property) IsRelation() bool { return p.ref != NoReference }

// MappedBy returns the explicit forward property name, if any.
func (p *Property) MappedBy() string { return p.mappedBy }

// Via returns the pivot type name, if any.
func (p *Property) Via() string { return p.via }

// IsPrimary reports whether the property is the primary key.
func (p *Property) IsPrimary() bool { return p.primary }

// IsIndex reports whether the property is indexed.
func (p *Property) IsIndex() bool { return p.index }

// IsOptional reports whether the property may be absent.
func (p *Property) IsOptional() bool { return p.optional }

// IsNullable reports whether null is a legal value.
func (p *Property) IsNullable() bool { return p.nullable }

// IsParentReference reports whether the property points at the embedding parent.
func (p *Property) IsParentReference() bool { return p.parent }

// IsPersisted reports whether the property is written to the store.
func (p *Property) IsPersisted() bool {
	return p.ref != BackReference && !p.parent
}

// DefaultValue produces the default value for fresh instances.
func (p *Property) DefaultValue() (any, bool) {
	if p.defaultFn == nil {
		return nil, false
	}
	return p.defaultFn(), true
}

// Owner returns the schema the property is registered on, or nil.
func (p *Property) Owner() *Schema { return p.owner }

// ResolvedSchema returns the schema of the referenced or embedded type.
func (p *Property) ResolvedSchema() (*Schema, error) {
	if p.typ != TypeClass {
		return nil, &SchemaError{
			Code:     ErrCodeInvalidSchema,
			Type:     p.ownerName(),
			Property: p.name,
			Message:  "property " + p.name + " is not a class property",
		}
	}
	if p.owner == nil || p.owner.registry == nil {
		return nil, newInvalid(p.ownerName(), p.name, "property %s is not registered", p.name)
	}
	return p.owner.registry.Get(p.target)
}

// String returns Type.property for diagnostics.
func (p *Property) String() string {
	return p.ownerName() + "." + p.name
}

func (p *Property) ownerName() string {
	if p.owner == nil {
		return ""
	}
	return p.owner.typeName
}
