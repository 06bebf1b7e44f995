package schemaload

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docmap/internal/schema"
)

func TestLoadDir(t *testing.T) {
	result, errs := LoadDir(filepath.Join("testdata", "entities"), CollectAll)
	require.Empty(t, errs)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.FileCount)

	reg := result.Registry
	var names []string
	for _, s := range reg.Schemas() {
		names = append(names, s.TypeName())
	}
	assert.ElementsMatch(t, []string{"User", "Organisation", "OrganisationMembership"}, names)

	user := reg.MustGet("User")
	assert.Equal(t, "user2", user.Name())
	assert.Equal(t, "id", user.PrimaryKeyName())

	var props []string
	for _, p := range user.Properties() {
		props = append(props, p.Name())
	}
	assert.Equal(t, []string{"id", "organisations", "manager", "managedUsers", "name"}, props)

	id := user.Property("id")
	assert.Equal(t, schema.TypeUUID, id.Type())
	v, ok := id.DefaultValue()
	require.True(t, ok)
	assert.Len(t, v, 36)

	manager := user.Property("manager")
	assert.True(t, manager.IsReference())
	assert.True(t, manager.IsOptional())
	assert.Equal(t, "User", manager.Target())

	users := reg.MustGet("Organisation").Property("users")
	rel, err := reg.ResolveBackReference(users)
	require.NoError(t, err)
	assert.Equal(t, "OrganisationMembership", rel.Pivot.TypeName())
	assert.Equal(t, "organisation", rel.Left.Name())
	assert.Equal(t, "user", rel.Right.Name())

	managed, err := reg.ResolveBackReference(user.Property("managedUsers"))
	require.NoError(t, err)
	assert.Equal(t, "manager", managed.Reverse.Name())

	plan := reg.MustGet("Organisation").Property("plan")
	assert.Equal(t, schema.TypeEnum, plan.Type())
	assert.Equal(t, []string{"free", "team", "enterprise"}, plan.EnumMembers())

	assert.True(t, reg.MustGet("OrganisationMembership").Property("user").IsIndex())
}

func TestLoadDir_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		result, errs := LoadDir(filepath.Join("testdata", "nope"), FailFast)
		assert.Nil(t, result)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNotFound, errs[0].(*LoadError).Code)
	})

	t.Run("empty directory", func(t *testing.T) {
		result, errs := LoadDir(t.TempDir(), FailFast)
		assert.Nil(t, result)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrCodeNoFiles, errs[0].(*LoadError).Code)
	})

	t.Run("not a directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "x.cue")
		require.NoError(t, os.WriteFile(file, []byte("entity: {}\n"), 0o644))
		_, errs := LoadDir(file, FailFast)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), "not a directory")
	})
}

func TestCompileString(t *testing.T) {
	reg, err := CompileString("page.cue", `
		entity: Page: {
			properties: {
				_id:      {type: "objectId"}
				title:    {type: "string"}
				body:     {type: "binary", nullable: true}
				tags:     {type: "string", array: true}
				meta:     {type: "any", map: true}
				created:  {type: "date"}
				views:    {type: "integer"}
				score:    {type: "number"}
				draft:    {type: "boolean"}
				parent:   {type: "Page", parent: true, optional: true}
			}
		}
	`)
	require.NoError(t, err)

	page := reg.MustGet("Page")
	assert.Equal(t, "page", page.Name())
	assert.Nil(t, page.PrimaryKey())

	tests := []struct {
		prop string
		typ  schema.Type
		card schema.Cardinality
	}{
		{"_id", schema.TypeObjectID, schema.Single},
		{"title", schema.TypeString, schema.Single},
		{"body", schema.TypeBinary, schema.Single},
		{"tags", schema.TypeString, schema.Array},
		{"meta", schema.TypeAny, schema.Map},
		{"created", schema.TypeDate, schema.Single},
		{"views", schema.TypeInteger, schema.Single},
		{"score", schema.TypeNumber, schema.Single},
		{"draft", schema.TypeBoolean, schema.Single},
		{"parent", schema.TypeClass, schema.Single},
	}
	for _, tt := range tests {
		t.Run(tt.prop, func(t *testing.T) {
			p := page.Property(tt.prop)
			require.NotNil(t, p)
			assert.Equal(t, tt.typ, p.Type())
			assert.Equal(t, tt.card, p.Cardinality())
		})
	}

	assert.True(t, page.Property("body").IsNullable())
	assert.True(t, page.Property("parent").IsParentReference())
	assert.False(t, page.Property("parent").IsPersisted())
}

func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		code     string
		contains string
	}{
		{
			name:     "missing properties",
			src:      `entity: A: {name: "a"}`,
			code:     ErrCodeProperties,
			contains: "properties are required",
		},
		{
			name:     "missing type",
			src:      `entity: A: properties: x: {primary: true}`,
			code:     ErrCodeType,
			contains: "property x has no type",
		},
		{
			name:     "explicit class",
			src:      `entity: A: properties: x: {type: "class"}`,
			code:     ErrCodeType,
			contains: "target entity name",
		},
		{
			name:     "enum without members",
			src:      `entity: A: properties: x: {type: "enum"}`,
			code:     ErrCodeEnum,
			contains: "enum members are required",
		},
		{
			name:     "unknown default",
			src:      `entity: A: properties: x: {type: "string", default: "now"}`,
			code:     ErrCodeDefault,
			contains: `unknown default generator "now"`,
		},
		{
			name:     "two primary keys",
			src:      `entity: A: properties: {x: {type: "string", primary: true}, y: {type: "string", primary: true}}`,
			code:     ErrCodeSchema,
			contains: "multiple primary keys",
		},
		{
			name:     "unknown target",
			src:      `entity: A: properties: b: {type: "B", reference: true}`,
			code:     ErrCodeRelation,
			contains: "UNKNOWN_TYPE",
		},
		{
			name:     "no entities",
			src:      `other: 1`,
			code:     ErrCodeGeneric,
			contains: "no entities found",
		},
		{
			name:     "conflicting values",
			src:      "entity: A: properties: x: {type: \"string\"}\nentity: A: properties: x: {type: \"uuid\"}",
			code:     ErrCodeBuildFailed,
			contains: "conflicting values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString("bad.cue", tt.src)
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.code, le.Code)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestCompileValue_CollectAll(t *testing.T) {
	v := cuecontext.New().CompileString(`
		entity: A: properties: x: {type: "enum"}
		entity: B: properties: {
			id: {type: "uuid", primary: true}
			c:  {type: "C", array: true, backReference: {}}
		}
		entity: C: properties: {
			b1: {type: "B", reference: true}
			b2: {type: "B", reference: true}
		}
	`, cue.Filename("collect.cue"))
	require.NoError(t, v.Err())

	reg, errs := CompileValue(v, CollectAll)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrCodeEnum, errs[0].(*LoadError).Code)
	assert.Equal(t, "A", errs[0].(*LoadError).Entity)
	assert.Equal(t, ErrCodeRelation, errs[1].(*LoadError).Code)
	assert.Contains(t, errs[1].Error(), "AMBIGUOUS_REFERENCE")

	_, err := reg.Get("B")
	assert.NoError(t, err)
	_, err = reg.Get("A")
	assert.Error(t, err)
}

func TestCompileError_Position(t *testing.T) {
	_, err := CompileString("pos.cue", "entity: A: properties: {\n\tx: {type: \"string\", default: \"now\"}\n}\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pos.cue:2:")
}
