package query

import (
	"maps"
	"slices"
	"strings"

	"github.com/roach88/docmap/internal/schema"
)

// Filter is a filter expression keyed by field path.
//
// A field maps either to a literal (equality) or to an operator document:
//
//	Filter{"name": "marc"}
//	Filter{"age": Filter{"$gte": 18, "$lt": 65}}
//	Filter{"user": marc}                         // entity or key of a reference
//	Filter{"name": Param("name")}                // bound at execution
//	Filter{"$or": []Filter{{"name": "a"}, {"name": "b"}}}
//
// Operators: $eq $ne $gt $gte $lt $lte $in $nin $exists $not, plus $and and
// $or at the top level. Literals are given in class form and converted to
// the store form through the queried schema. Unknown fields pass through
// unconverted and match nothing.
//
// Filters are read-only once handed to a query and are shared between
// clones.
type Filter map[string]any

// Param returns a named parameter placeholder usable wherever a filter
// literal is.
func Param(name string) Filter {
	return Filter{"$parameter": name}
}

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Asc sorts by field ascending.
func Asc(field string) SortField { return SortField{Field: field} }

// Desc sorts by field descending.
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// ParseSort reads "name" as ascending and "-name" as descending.
func ParseSort(s string) SortField {
	if field, ok := strings.CutPrefix(s, "-"); ok {
		return Desc(field)
	}
	return Asc(s)
}

// JoinKind selects how an empty relation affects the parent row.
type JoinKind int

const (
	// LeftJoin keeps parent rows whose relation is empty.
	LeftJoin JoinKind = iota

	// InnerJoin drops parent rows whose relation is empty.
	InnerJoin
)

func (k JoinKind) String() string {
	if k == InnerJoin {
		return "inner"
	}
	return "left"
}

// Join is a node of the join tree.
type Join struct {
	// Property is the relation being joined, declared on the parent type.
	Property *schema.Property

	// Kind is LeftJoin or InnerJoin.
	Kind JoinKind

	// Populate merges the related data into the parent. Without it the join
	// only affects which parent rows are returned.
	Populate bool

	// Query is the nested query scoped to the joined type.
	Query *Model
}

// Model is the query description a builder accumulates.
type Model struct {
	Filter     Filter
	Sort       []SortField
	Skip       int
	Limit      int
	Select     []string
	Parameters map[string]any
	Joins      []*Join
}

// Clone returns a copy of m. The join tree is copied deeply; the filter is
// shared.
func (m *Model) Clone() *Model {
	if m == nil {
		return &Model{}
	}
	out := &Model{
		Filter:     m.Filter,
		Sort:       slices.Clone(m.Sort),
		Skip:       m.Skip,
		Limit:      m.Limit,
		Select:     slices.Clone(m.Select),
		Parameters: maps.Clone(m.Parameters),
	}
	if len(m.Joins) > 0 {
		out.Joins = make([]*Join, len(m.Joins))
		for i, j := range m.Joins {
			cj := *j
			cj.Query = j.Query.Clone()
			out.Joins[i] = &cj
		}
	}
	return out
}

// HasInnerJoins reports whether any join restricts the result set.
func (m *Model) HasInnerJoins() bool {
	for _, j := range m.Joins {
		if j.Kind == InnerJoin {
			return true
		}
	}
	return false
}

// IsRestricted reports whether the model narrows its results with a filter,
// paging or an inner join.
func (m *Model) IsRestricted() bool {
	return len(m.Filter) > 0 || m.Skip > 0 || m.Limit > 0 || m.HasInnerJoins()
}

// IsPartial reports whether the model selects a subset of fields.
func (m *Model) IsPartial() bool {
	return len(m.Select) > 0
}

// GetJoin returns the first join on the named property.
func (m *Model) GetJoin(name string) (*Join, int) {
	for i, j := range m.Joins {
		if j.Property.Name() == name {
			return j, i
		}
	}
	return nil, -1
}
