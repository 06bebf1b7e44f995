package queryir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docmap/internal/wire"
)

func TestValidate_ValidQuery(t *testing.T) {
	query := Find{
		Collection: "user2",
		Filter: And{Predicates: []Predicate{
			Equals{Field: "name", Value: "marc"},
			Compare{Field: "created", Op: OpGte, Value: time.Now()},
			In{Field: "id", Values: []any{wire.Binary{Subtype: wire.SubtypeUUID, Data: []byte{1}}}},
			Not{Predicate: Exists{Field: "manager", Exists: true}},
			Or{Predicates: []Predicate{Equals{Field: "manager", Value: nil}}},
		}},
		Sort:       []SortField{{Field: "name"}, {Field: "created", Desc: true}},
		Limit:      10,
		Projection: []string{"_id", "name"},
	}

	result := Validate(query)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Problems)
	assert.NoError(t, result.Err())
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name     string
		query    Find
		contains string
	}{
		{"missing collection", Find{}, "collection is required"},
		{"negative skip", Find{Collection: "c", Skip: -1}, "negative skip"},
		{"negative limit", Find{Collection: "c", Limit: -2}, "negative limit"},
		{"empty sort field", Find{Collection: "c", Sort: []SortField{{}}}, "sort: empty field path"},
		{"quoted field", Find{Collection: "c", Filter: Equals{Field: `a"b`, Value: "x"}}, "contains a quote"},
		{"empty segment", Find{Collection: "c", Projection: []string{"a..b"}}, "empty segment"},
		{"unsupported value", Find{Collection: "c", Filter: Equals{Field: "a", Value: []any{1}}}, "unsupported type"},
		{"null in", Find{Collection: "c", Filter: In{Field: "a", Values: []any{nil}}}, "null has no canonical key"},
		{"ordered compare with null", Find{Collection: "c", Filter: Compare{Field: "a", Op: OpLt}}, "null"},
		{"unknown operator", Find{Collection: "c", Filter: Compare{Field: "a", Op: "~", Value: "x"}}, "unknown operator"},
		{"empty not", Find{Collection: "c", Filter: Not{}}, "not: missing predicate"},
		{"nil in and", Find{Collection: "c", Filter: And{Predicates: []Predicate{nil}}}, "nil predicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.False(t, result.IsValid)
			require.NotEmpty(t, result.Problems)
			assert.Contains(t, result.Problems[0], tt.contains)
			assert.ErrorContains(t, result.Err(), tt.contains)
		})
	}
}

func TestValidate_NeAcceptsNull(t *testing.T) {
	result := Validate(Find{Collection: "c", Filter: Compare{Field: "a", Op: OpNe}})
	assert.True(t, result.IsValid)
}

func TestAndOf(t *testing.T) {
	assert.Nil(t, AndOf())
	assert.Nil(t, AndOf(nil, nil))

	eq := Equals{Field: "a", Value: "x"}
	assert.Equal(t, eq, AndOf(nil, eq))

	in := In{Field: "b", Values: []any{"y"}}
	assert.Equal(t, And{Predicates: []Predicate{eq, in}}, AndOf(eq, nil, in))
}
