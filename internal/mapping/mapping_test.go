package mapping

import (
	"encoding/base64"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(
		schema.New("SubModel",
			schema.String("label"),
		),
		schema.New("SimpleModel",
			schema.UUID("id").Primary().Default(schema.NewUUID),
			schema.String("name"),
			schema.Number("type"),
			schema.Enum("plan", "default", "pro", "enterprise"),
			schema.Date("created"),
			schema.String("types").Array(),
			schema.Class("children", "SubModel").Array(),
			schema.Class("childrenMap", "SubModel").Map(),
			schema.String("stringChildrenCollection").Array(),
			schema.Any("anyField"),
		),
		schema.New("DocumentClass",
			schema.ObjectID("_id").Primary(),
			schema.String("name").Optional(),
			schema.Class("pages", "PageClass").Array(),
		),
		schema.New("PageClass",
			schema.String("name"),
			schema.Class("children", "PageClass").Array(),
			schema.Class("document", "DocumentClass").Parent(),
		),
		schema.New("Model",
			schema.ObjectID("id2").Optional(),
			schema.UUID("uuid").Optional(),
			schema.String("name").Optional(),
			schema.Binary("preview").Optional(),
		),
		schema.New("Profile",
			schema.String("name").Optional(),
			schema.String("tags").Array().Optional(),
			schema.Binary("picture").Optional(),
			schema.Binary("avatar").Optional().Nullable(),
			schema.Class("parent", "Profile").Parent().Optional(),
		),
		schema.New("User",
			schema.UUID("id").Primary().Default(schema.NewUUID),
			schema.String("name"),
			schema.Class("manager", "User").Reference().Optional(),
			schema.Class("managedUsers", "User").Array().BackReference(),
		),
	))
	require.NoError(t, reg.Validate())
	return reg
}

func TestClassToWire_SimpleModel(t *testing.T) {
	reg := testRegistry(t)
	sub := reg.MustGet("SubModel")
	m := New()

	created := time.Date(2018, 10, 13, 12, 17, 35, 0, time.UTC)
	e := entity.New(reg.MustGet("SimpleModel")).
		MustSet("name", "myName").
		MustSet("type", 5).
		MustSet("plan", "pro").
		MustSet("created", created).
		MustSet("children", []any{
			entity.New(sub).MustSet("label", "fooo"),
			entity.New(sub).MustSet("label", "barr"),
		}).
		MustSet("childrenMap", map[string]any{
			"foo":  entity.New(sub).MustSet("label", "bar"),
			"foo2": entity.New(sub).MustSet("label", "bar2"),
		})

	doc, err := m.ClassToWire(e)
	require.NoError(t, err)

	id, ok := doc["id"].(wire.Binary)
	require.True(t, ok, "id must be stored as binary")
	assert.Equal(t, wire.SubtypeUUID, id.Subtype)
	assert.Equal(t, uuid.MustParse(e.ID().(string)), uuid.UUID(id.Data))

	assert.Equal(t, "myName", doc["name"])
	assert.Equal(t, 5.0, doc["type"])
	assert.Equal(t, "pro", doc["plan"])
	assert.Equal(t, created, doc["created"])
	assert.Equal(t, []any{
		map[string]any{"label": "fooo"},
		map[string]any{"label": "barr"},
	}, doc["children"])
	assert.Equal(t, map[string]any{
		"foo":  map[string]any{"label": "bar"},
		"foo2": map[string]any{"label": "bar2"},
	}, doc["childrenMap"])
}

func TestAbsentStaysAbsent(t *testing.T) {
	reg := testRegistry(t)
	model := reg.MustGet("Model")
	m := New()

	doc, err := m.ClassToWire(entity.New(model).MustSet("name", "peter"))
	require.NoError(t, err)
	assert.Equal(t, "peter", doc["name"])

	doc, err = m.ClassToWire(entity.New(model))
	require.NoError(t, err)
	assert.NotContains(t, doc, "name")

	doc, err = m.PlainToWire(model, map[string]any{})
	require.NoError(t, err)
	assert.NotContains(t, doc, "name")
}

func TestConvertIDsAndInvalidValues(t *testing.T) {
	reg := testRegistry(t)
	model := reg.MustGet("Model")
	m := New()

	doc, err := m.ClassToWire(entity.New(model).MustSet("id2", "5be340cb2ffb5e901a9b62e4"))
	require.NoError(t, err)
	id, ok := doc["id2"].(wire.ObjectID)
	require.True(t, ok)
	assert.Equal(t, "5be340cb2ffb5e901a9b62e4", id.Hex())

	_, err = m.ClassToWire(entity.New(model).MustSet("id2", "notavalidId"))
	require.Error(t, err)
	assert.True(t, IsConversionError(err))
	assert.EqualError(t, err, "Invalid ObjectID given in property id2")

	_, err = m.ClassToWire(entity.New(model).MustSet("uuid", "notavalidId"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid UUID v4 given")

	_, err = m.PlainToWire(reg.MustGet("SimpleModel"), map[string]any{"plan": "gold"})
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid enum value given in property plan")
}

func TestBinary(t *testing.T) {
	reg := testRegistry(t)
	model := reg.MustGet("Model")
	m := New()

	doc, err := m.ClassToWire(entity.New(model).MustSet("preview", []byte("FooBar")))
	require.NoError(t, err)
	bin, ok := doc["preview"].(wire.Binary)
	require.True(t, ok)
	assert.Equal(t, 6, bin.Len())

	e, err := m.WireToClass(model, wire.Document{"preview": wire.Binary{Data: []byte("FooBar")}})
	require.NoError(t, err)
	assert.Equal(t, []byte("FooBar"), e.MustGet("preview"))
}

func TestPartial_ConvertsTerminalValue(t *testing.T) {
	reg := testRegistry(t)
	s := reg.MustGet("SimpleModel")
	sub := reg.MustGet("SubModel")
	m := New()

	tests := []struct {
		name     string
		in       map[string]any
		expected map[string]any
	}{
		{"array element field", map[string]any{"children.0.label": 2}, map[string]any{"children.0.label": "2"}},
		{"map entry field", map[string]any{"childrenMap.foo.label": 5}, map[string]any{"childrenMap.foo.label": "5"}},
		{"string array element", map[string]any{"stringChildrenCollection.0": 4}, map[string]any{"stringChildrenCollection.0": "4"}},
		{"whole string array", map[string]any{"types": []any{6, 7}}, map[string]any{"types": []any{"6", "7"}}},
		{"array value for element", map[string]any{"types.0": []any{7}}, map[string]any{"types.0": "7"}},
		{"unknown path passes through", map[string]any{"nope.deep": 1}, map[string]any{"nope.deep": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fromClass, err := m.PartialClassToWire(s, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fromClass)

			fromPlain, err := m.PartialPlainToWire(s, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fromPlain)
		})
	}

	t.Run("embedded element", func(t *testing.T) {
		out, err := m.PartialClassToWire(s, map[string]any{
			"name":       "Hi",
			"children.0": entity.New(sub).MustSet("label", "3"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Hi", out["name"])
		assert.Equal(t, map[string]any{"label": "3"}, out["children.0"])
		assert.NotContains(t, out, "id")

		toClass, err := m.PartialPlainToClass(s, map[string]any{"children.0": map[string]any{"label": 3}})
		require.NoError(t, err)
		child, ok := toClass["children.0"].(*entity.Entity)
		require.True(t, ok)
		assert.Equal(t, "3", child.MustGet("label"))

		plain, err := m.PartialPlainToWire(s, map[string]any{"children": []any{map[string]any{"label": 3}}})
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{"label": "3"}}, plain["children"])
	})

	t.Run("required fields are not checked", func(t *testing.T) {
		_, err := m.PartialPlainToWire(s, map[string]any{"children": []any{map[string]any{}}})
		assert.NoError(t, err)
	})
}

func TestPartial_InvalidIdentifiers(t *testing.T) {
	reg := testRegistry(t)
	simple := reg.MustGet("SimpleModel")
	doc := reg.MustGet("DocumentClass")
	m := New()

	_, err := m.PartialPlainToWire(simple, map[string]any{"id": "invalid-id"})
	assert.EqualError(t, err, "Invalid UUID v4 given in property id")

	_, err = m.PartialClassToWire(simple, map[string]any{"id": "invalid-id"})
	assert.EqualError(t, err, "Invalid UUID v4 given in property id")

	_, err = m.PartialPlainToWire(doc, map[string]any{"_id": "invalid-id"})
	assert.EqualError(t, err, "Invalid ObjectID given in property _id")

	_, err = m.PartialClassToWire(doc, map[string]any{"_id": "invalid-id"})
	assert.EqualError(t, err, "Invalid ObjectID given in property _id")

	out, err := m.PartialClassToWire(doc, map[string]any{"_id": nil})
	require.NoError(t, err)
	v, ok := out["_id"]
	assert.True(t, ok, "null must not become absent")
	assert.Nil(t, v)

	out, err = m.PartialPlainToWire(doc, map[string]any{"_id": nil})
	require.NoError(t, err)
	assert.Contains(t, out, "_id")
}

func TestFull_ValidationIsNotMarshalling(t *testing.T) {
	reg := testRegistry(t)
	s := reg.MustGet("SimpleModel")
	m := New()

	_, err := m.PlainToWire(s, map[string]any{
		"name": "peter",
		"children": []any{
			map[string]any{"name": "p"},
			map[string]any{"age": 2},
			map[string]any{},
		},
	})
	assert.NoError(t, err)
}

func TestAnyIsPassedByIdentity(t *testing.T) {
	reg := testRegistry(t)
	m := New()

	anyV := map[string]any{"peter": 1}
	doc, err := m.PlainToWire(reg.MustGet("SimpleModel"), map[string]any{"name": "peter", "anyField": anyV})
	require.NoError(t, err)

	assert.Equal(t, reflect.ValueOf(anyV).Pointer(), reflect.ValueOf(doc["anyField"]).Pointer())
}

func TestNullAndCoercion(t *testing.T) {
	reg := testRegistry(t)
	profile := reg.MustGet("Profile")
	m := New()
	bin := []byte("Hello")

	input := map[string]any{
		"name":    "peter",
		"picture": nil,
		"avatar":  nil,
		"tags":    map[string]any{},
		"parent":  map[string]any{"name": "Marie"},
	}

	doc, err := m.PlainToWire(profile, input)
	require.NoError(t, err)
	assert.Equal(t, "peter", doc["name"])
	assert.NotContains(t, doc, "picture")
	assert.Contains(t, doc, "avatar")
	assert.Nil(t, doc["avatar"])
	assert.Equal(t, []any{}, doc["tags"])
	assert.NotContains(t, doc, "parent")

	e, err := m.WireToClass(profile, input)
	require.NoError(t, err)
	assert.Equal(t, "peter", e.MustGet("name"))
	assert.Nil(t, e.MustGet("picture"))
	assert.Equal(t, []any{}, e.MustGet("tags"))
	_, hasParent := e.Raw("parent")
	assert.False(t, hasParent)

	plain, err := m.PartialWireToPlain(profile, map[string]any{"picture": nil, "tags": map[string]any{}})
	require.NoError(t, err)
	assert.Contains(t, plain, "picture")
	assert.Nil(t, plain["picture"])
	assert.Equal(t, []any{}, plain["tags"])

	partial, err := m.PartialClassToWire(profile, map[string]any{
		"picture": nil,
		"parent":  entity.New(profile),
		"tags":    map[string]any{},
	})
	require.NoError(t, err)
	assert.NotContains(t, partial, "parent")
	assert.Equal(t, []any{}, partial["tags"])

	plain, err = m.PartialWireToPlain(profile, map[string]any{"picture": wire.Binary{Data: bin}, "name": "peter"})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(bin), plain["picture"])

	stored, err := m.PartialClassToWire(profile, map[string]any{"picture": bin})
	require.NoError(t, err)
	assert.Equal(t, wire.Binary{Data: bin}, stored["picture"])

	stored, err = m.PartialPlainToWire(profile, map[string]any{"picture": base64.StdEncoding.EncodeToString(bin)})
	require.NoError(t, err)
	assert.Equal(t, wire.Binary{Data: bin}, stored["picture"])
}

func TestPartialDocument(t *testing.T) {
	reg := testRegistry(t)
	doc := reg.MustGet("DocumentClass")
	page := reg.MustGet("PageClass")
	m := New()

	out, err := m.PartialClassToWire(doc, map[string]any{
		"pages.0.name":            5,
		"pages.0.children.0.name": 6,
		"pages.0.children":        []any{entity.New(page).MustSet("name", "7")},
	})
	require.NoError(t, err)

	assert.Equal(t, "5", out["pages.0.name"])
	assert.Equal(t, "6", out["pages.0.children.0.name"])
	children, ok := out["pages.0.children"].([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "7"}, children[0])
}

func TestReferences(t *testing.T) {
	reg := testRegistry(t)
	user := reg.MustGet("User")

	boss := entity.New(user).MustSet("name", "boss")
	worker := entity.New(user).MustSet("name", "worker").MustSet("manager", boss)

	var created []*entity.Entity
	m := New(WithReferenceFactory(func(s *schema.Schema, pk any) *entity.Entity {
		e := entity.NewReference(s, pk)
		created = append(created, e)
		return e
	}))

	doc, err := m.ClassToWire(worker)
	require.NoError(t, err)
	assert.NotContains(t, doc, "managedUsers")
	bossKey, err := m.PartialClassToWire(user, map[string]any{"id": boss.ID()})
	require.NoError(t, err)
	assert.Equal(t, bossKey["id"], doc["manager"])

	loaded, err := m.WireToClass(user, doc)
	require.NoError(t, err)
	assert.True(t, loaded.IsPopulated())
	assert.Equal(t, worker.ID(), loaded.LastKnownPK())

	manager, err := loaded.Ref("manager")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Same(t, created[0], manager)
	assert.Equal(t, boss.ID(), manager.ID())
	assert.Equal(t, entity.Unpopulated, manager.State())

	_, err = loaded.Get("managedUsers")
	assert.True(t, entity.IsUnpopulatedAccess(err))

	plain, err := m.ClassToPlain(worker)
	require.NoError(t, err)
	assert.Equal(t, boss.ID(), plain["manager"])

	filter, err := m.PartialClassToWire(user, map[string]any{"manager": boss.ID()})
	require.NoError(t, err)
	assert.Equal(t, doc["manager"], filter["manager"])
}

func TestPlainToClass_AppliesDefaults(t *testing.T) {
	reg := testRegistry(t)
	m := New()

	e, err := m.PlainToClass(reg.MustGet("User"), map[string]any{"name": "marc"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID())
	assert.Equal(t, "marc", e.MustGet("name"))

	managed, err := e.Collection("managedUsers")
	require.NoError(t, err)
	assert.Empty(t, managed)
}

func TestConvert(t *testing.T) {
	reg := testRegistry(t)
	user := reg.MustGet("User")
	m := New()

	e := entity.New(user).MustSet("name", "marc")
	doc, err := m.Convert(user, e, Class, Wire)
	require.NoError(t, err)

	plain, err := m.Convert(user, doc, Wire, Plain)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": e.ID(), "name": "marc"}, plain)

	back, err := m.Convert(user, plain, Plain, Class)
	require.NoError(t, err)
	assert.Equal(t, e.ID(), back.(*entity.Entity).ID())

	_, err = m.Convert(user, "nope", Plain, Wire)
	assert.Error(t, err)
}
