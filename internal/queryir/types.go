package queryir

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = value (nil matches null or missing)
//   - Compare: field <op> value
//   - In: field in (values...), optionally negated
//   - Exists: field present (or absent)
//   - And, Or, Not: boolean composition
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Find is a single storage query against one collection.
//
// Semantics:
//
//	SELECT doc FROM <collection> WHERE <filter>
//	ORDER BY <sort>, insertion order LIMIT <limit> OFFSET <skip>
//
// Results without a sort keep insertion order. With a sort, insertion order
// breaks ties, so results are always deterministic.
//
// Example:
//
//	Find{
//	  Collection: "user2",
//	  Filter:     Equals{Field: "name", Value: "marc"},
//	  Sort:       []SortField{{Field: "name"}},
//	  Limit:      1,
//	}
type Find struct {
	Collection string      // Collection name
	Filter     Predicate   // nil = match all
	Sort       []SortField // Applied in order, before insertion order
	Skip       int         // Rows to skip (0 = none)
	Limit      int         // Max rows (0 = unlimited)
	Projection []string    // Top-level fields to return (nil = whole document)
}

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Equals represents a field-equals-value predicate.
//
// Semantics:
//
//	<field> = <value>
//
// A nil Value matches documents where the field is null or missing.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpNe  CompareOp = "!="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
)

// Compare represents an ordered or inequality comparison.
//
// Semantics:
//
//	<field> <op> <value>
//
// OpNe also matches documents where the field is missing. The ordered
// operators never match a missing field.
type Compare struct {
	Field string
	Op    CompareOp
	Value any
}

func (Compare) predicateNode() {}

// In represents set membership.
//
// Semantics:
//
//	<field> IN (<values>)       // Negate = false
//	<field> NOT IN (<values>)   // Negate = true
//
// An empty Values list matches nothing, or everything when negated. The join
// planner uses In to restrict a query to a prefetched key set.
type In struct {
	Field  string
	Values []any
	Negate bool
}

func (In) predicateNode() {}

// Exists tests whether a field is present. A field holding null is present.
type Exists struct {
	Field  string
	Exists bool
}

func (Exists) predicateNode() {}

// And represents a conjunction. Empty Predicates is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction. Empty Predicates is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// AndOf joins predicates, dropping nil entries. It returns nil when nothing
// remains and the single predicate when only one does.
func AndOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}
