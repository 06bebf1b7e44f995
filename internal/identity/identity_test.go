package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/schema"
)

func testSchemas(t *testing.T) (*schema.Schema, *schema.Schema) {
	t.Helper()
	user := schema.New("User", schema.UUID("id").Primary(), schema.String("name"))
	group := schema.New("Group", schema.Integer("id").Primary())
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(user, group))
	return user, group
}

func TestRegistry_RememberLookup(t *testing.T) {
	user, group := testSchemas(t)
	r := New()

	marc := entity.NewReference(user, "f2e5e0c4-3b2a-4d6f-9a1b-0c2d3e4f5a6b")
	r.Remember(user, marc.ID(), marc)

	got, ok := r.Lookup(user, "f2e5e0c4-3b2a-4d6f-9a1b-0c2d3e4f5a6b")
	require.True(t, ok)
	assert.Same(t, marc, got)

	_, ok = r.Lookup(group, "f2e5e0c4-3b2a-4d6f-9a1b-0c2d3e4f5a6b")
	assert.False(t, ok, "keys are scoped per type")

	assert.Equal(t, 1, r.Len())
}

func TestRegistry_NumericKeysNormalise(t *testing.T) {
	_, group := testSchemas(t)
	r := New()

	g := entity.NewReference(group, int64(5))
	r.Remember(group, int64(5), g)

	got, ok := r.Lookup(group, 5.0)
	require.True(t, ok)
	assert.Same(t, g, got)

	assert.False(t, r.IsKnownByPK(group, "5"))
}

func TestRegistry_IsKnown(t *testing.T) {
	user, _ := testSchemas(t)
	r := New()

	marc := entity.NewReference(user, "a")
	other := entity.NewReference(user, "a")
	r.Remember(user, "a", marc)

	assert.True(t, r.IsKnown(user, marc))
	assert.False(t, r.IsKnown(user, other), "another instance with the same key is not the known one")
	assert.False(t, r.IsKnown(user, nil))
	assert.Equal(t, "a", r.LastKnownPK(marc))
}

func TestRegistry_RememberSetsLastKnownPK(t *testing.T) {
	user, _ := testSchemas(t)
	r := New()

	e := entity.New(user)
	e.MustSet("id", "b")
	r.Remember(user, "b", e)

	assert.Equal(t, "b", e.LastKnownPK())
}

func TestRegistry_ForgetAndClear(t *testing.T) {
	user, _ := testSchemas(t)
	r := New()

	a := entity.NewReference(user, "a")
	b := entity.NewReference(user, "b")
	r.Remember(user, "a", a)
	r.Remember(user, "b", b)

	r.Forget(user, a)
	assert.False(t, r.IsKnownByPK(user, "a"))
	assert.True(t, r.IsKnownByPK(user, "b"))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.IsKnown(user, b))
}

func TestRegistry_IgnoresUnkeyable(t *testing.T) {
	user, _ := testSchemas(t)
	r := New()

	r.Remember(user, nil, entity.New(user))
	assert.Equal(t, 0, r.Len())

	_, ok := r.Lookup(user, []any{"x"})
	assert.False(t, ok)
}
