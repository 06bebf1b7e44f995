package testutil

import (
	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/schema"
)

// Registry returns the users and organisations model used across tests:
//
//	User                    (user2)
//	  organisations  -> Organisation via OrganisationMembership
//	  manager        -> User
//	  managedUsers   <- User.manager
//	Organisation            (organisation2)
//	  users          <- User via OrganisationMembership
//	  owner          -> User
//	OrganisationMembership  (organisation_member2)
//	  user           -> User
//	  organisation   -> Organisation
func Registry() *schema.Registry {
	return schema.NewRegistry().MustRegister(
		schema.New("User",
			schema.UUID("id").Primary().Default(schema.NewUUID),
			schema.Class("organisations", "Organisation").Array().BackReference(schema.Via("OrganisationMembership")),
			schema.Class("manager", "User").Reference().Optional(),
			schema.Class("managedUsers", "User").Array().BackReference(),
			schema.String("name"),
		).Named("user2"),
		schema.New("Organisation",
			schema.UUID("id").Primary().Default(schema.NewUUID),
			schema.Class("users", "User").Array().BackReference(schema.MappedBy("organisations"), schema.Via("OrganisationMembership")),
			schema.String("name"),
			schema.Class("owner", "User").Reference(),
		).Named("organisation2"),
		schema.New("OrganisationMembership",
			schema.UUID("id").Primary().Default(schema.NewUUID),
			schema.Class("user", "User").Reference().Index(),
			schema.Class("organisation", "Organisation").Reference().Index(),
		).Named("organisation_member2"),
	)
}

// Fixture is the four users, two organisations and four memberships
// scenario. Entities are built in memory; tests store them in Order.
type Fixture struct {
	Registry *schema.Registry

	User         *schema.Schema
	Organisation *schema.Schema
	Membership   *schema.Schema

	Admin, Marc, Peter, Marcel *entity.Entity
	Microsoft, Apple           *entity.Entity

	// Memberships are (marc, apple), (marc, microsoft), (peter, microsoft)
	// and (marcel, microsoft), in that order.
	Memberships []*entity.Entity
}

// NewFixture builds the scenario with keys taken from ids.
func NewFixture(ids *UUIDSequence) *Fixture {
	reg := Registry()
	f := &Fixture{
		Registry:     reg,
		User:         reg.MustGet("User"),
		Organisation: reg.MustGet("Organisation"),
		Membership:   reg.MustGet("OrganisationMembership"),
	}

	user := func(name string) *entity.Entity {
		return entity.New(f.User).MustSet("id", ids.Next()).MustSet("name", name)
	}
	f.Admin = user("admin")
	f.Marc = user("marc")
	f.Peter = user("peter")
	f.Marcel = user("marcel")

	org := func(name string, owner *entity.Entity) *entity.Entity {
		return entity.New(f.Organisation).MustSet("id", ids.Next()).MustSet("name", name).MustSet("owner", owner)
	}
	f.Microsoft = org("Microsoft", f.Admin)
	f.Apple = org("Apple", f.Admin)

	member := func(u, o *entity.Entity) *entity.Entity {
		return entity.New(f.Membership).MustSet("id", ids.Next()).MustSet("user", u).MustSet("organisation", o)
	}
	f.Memberships = []*entity.Entity{
		member(f.Marc, f.Apple),
		member(f.Marc, f.Microsoft),
		member(f.Peter, f.Microsoft),
		member(f.Marcel, f.Microsoft),
	}
	return f
}

// Order returns every entity in insertion order.
func (f *Fixture) Order() []*entity.Entity {
	out := []*entity.Entity{f.Admin, f.Marc, f.Peter, f.Marcel, f.Microsoft, f.Apple}
	return append(out, f.Memberships...)
}

// NewUser returns an unsaved user with the next key.
func (f *Fixture) NewUser(ids *UUIDSequence, name string) *entity.Entity {
	return entity.New(f.User).MustSet("id", ids.Next()).MustSet("name", name)
}
