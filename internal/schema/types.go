package schema

//go:generate go tool stringer -type=Type,Cardinality,ReferenceKind -linecomment -output=types_string.go

// Type is the semantic value type of a property.
type Type int

const (
	TypeAny      Type = iota // any
	TypeString               // string
	TypeNumber               // number
	TypeInteger              // integer
	TypeBoolean              // boolean
	TypeDate                 // date
	TypeUUID                 // uuid
	TypeObjectID             // objectId
	TypeBinary               // binary
	TypeEnum                 // enum
	TypeClass                // class
)

// Cardinality says whether a property holds one value, an array or a map.
type Cardinality int

const (
	Single Cardinality = iota // single
	Array                     // array
	Map                       // map
)

// ReferenceKind distinguishes plain values from the two sides of a relation.
type ReferenceKind int

const (
	NoReference      ReferenceKind = iota // none
	ForwardReference                      // reference
	BackReference                         // backReference
)

// ParseType maps a type name as written in declarations to a Type.
func ParseType(s string) (Type, bool) {
	for t := TypeAny; t <= TypeClass; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return TypeAny, false
}
