package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersAndOrganisations(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	err := reg.Register(
		New("User",
			UUID("id").Primary().Default(NewUUID),
			Class("organisations", "Organisation").Array().BackReference(Via("OrganisationMembership")),
			Class("manager", "User").Reference().Optional(),
			Class("managedUsers", "User").Array().BackReference(),
			String("name"),
		).Named("user2"),
		New("Organisation",
			UUID("id").Primary().Default(NewUUID),
			Class("users", "User").Array().BackReference(MappedBy("organisations"), Via("OrganisationMembership")),
			String("name"),
			Class("owner", "User").Reference(),
		).Named("organisation2"),
		New("OrganisationMembership",
			UUID("id").Primary().Default(NewUUID),
			Class("user", "User").Reference().Index(),
			Class("organisation", "Organisation").Reference().Index(),
		).Named("organisation_member2"),
	)
	require.NoError(t, err)
	return reg
}

func TestFindReverseReference(t *testing.T) {
	reg := usersAndOrganisations(t)
	user := reg.MustGet("User")
	org := reg.MustGet("Organisation")
	pivot := reg.MustGet("OrganisationMembership")

	tests := []struct {
		name     string
		on       *Schema
		toType   string
		from     *Property
		expected string
	}{
		{"self reference collection to forward", user, "User", user.Property("managedUsers"), "manager"},
		{"self reference forward to collection", user, "User", user.Property("manager"), "managedUsers"},
		{"via back-reference pairs with mappedBy", org, "User", user.Property("organisations"), "users"},
		{"mappedBy resolves directly", user, "Organisation", org.Property("users"), "organisations"},
		{"pivot join to the left", pivot, "User", user.Property("organisations"), "user"},
		{"pivot join to the right", pivot, "Organisation", user.Property("organisations"), "organisation"},
		{"pivot from the other side", pivot, "Organisation", org.Property("users"), "organisation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.on.FindReverseReference(tt.toType, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Name())
		})
	}
}

func TestFindReverseReference_ForwardToViaBackReferenceIsRejected(t *testing.T) {
	reg := usersAndOrganisations(t)
	user := reg.MustGet("User")
	org := reg.MustGet("Organisation")

	_, err := user.FindReverseReference("Organisation", org.Property("owner"))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeReferenceNotFound))
}

func TestFindReverseReference_NotAReference(t *testing.T) {
	reg := usersAndOrganisations(t)
	user := reg.MustGet("User")

	_, err := user.FindReverseReference("User", user.Property("name"))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeNotAReference))
	assert.Contains(t, err.Error(), "User.name is not marked as reference")
}

func TestFindReverseReference_Ambiguous(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(
		New("Author",
			ObjectID("_id").Primary(),
			Class("posts", "Post").Array().BackReference(),
		),
		New("Post",
			ObjectID("_id").Primary(),
			Class("writer", "Author").Reference(),
			Class("editor", "Author").Reference(),
		),
	))

	author := reg.MustGet("Author")
	post := reg.MustGet("Post")

	_, err := post.FindReverseReference("Author", author.Property("posts"))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeAmbiguousReference))
	assert.Contains(t, err.Error(), "writer, editor")
}

func TestResolveBackReference_Direct(t *testing.T) {
	reg := usersAndOrganisations(t)
	user := reg.MustGet("User")

	rel, err := reg.ResolveBackReference(user.Property("managedUsers"))
	require.NoError(t, err)
	assert.False(t, rel.IsPivot())
	assert.Equal(t, "manager", rel.Reverse.Name())
	assert.Same(t, user, rel.Target)
}

func TestResolveBackReference_Pivot(t *testing.T) {
	reg := usersAndOrganisations(t)
	user := reg.MustGet("User")
	org := reg.MustGet("Organisation")

	rel, err := reg.ResolveBackReference(user.Property("organisations"))
	require.NoError(t, err)
	require.True(t, rel.IsPivot())
	assert.Equal(t, "user", rel.Left.Name())
	assert.Equal(t, "organisation", rel.Right.Name())

	rel, err = reg.ResolveBackReference(org.Property("users"))
	require.NoError(t, err)
	assert.Equal(t, "organisation", rel.Left.Name())
	assert.Equal(t, "user", rel.Right.Name())
	assert.NotSame(t, rel.Left, rel.Right)
}

func TestResolvePivot_SelfReferenceUsesDeclarationOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(
		New("Person",
			UUID("id").Primary(),
			Class("friends", "Person").Array().BackReference(Via("Friendship")),
		),
		New("Friendship",
			UUID("id").Primary(),
			Class("from", "Person").Reference(),
			Class("to", "Person").Reference(),
		),
	))

	left, right, err := reg.ResolvePivot(reg.MustGet("Person").Property("friends"))
	require.NoError(t, err)
	assert.Equal(t, "from", left.Name())
	assert.Equal(t, "to", right.Name())

	got, err := reg.MustGet("Friendship").FindReverseReference("Person", reg.MustGet("Person").Property("friends"))
	require.NoError(t, err)
	assert.Equal(t, "from", got.Name())
}

func TestRegistry_Validate(t *testing.T) {
	reg := usersAndOrganisations(t)
	assert.NoError(t, reg.Validate())

	broken := NewRegistry()
	require.NoError(t, broken.Register(
		New("Order",
			UUID("id").Primary(),
			Class("lines", "Line").Array().BackReference(),
			Class("customer", "Customer").Reference(),
		),
		New("Line", UUID("id").Primary()),
	))

	err := broken.Validate()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeReferenceNotFound))
	assert.True(t, HasCode(err, ErrCodeUnknownType))
}
