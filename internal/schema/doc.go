// Package schema holds entity schemas and the reference resolver.
//
// A Schema describes one entity type: its registered collection name, its
// ordered properties and its primary key. Schemas are built with ordinary
// constructor calls and registered once in a Registry:
//
//	reg := schema.NewRegistry()
//	err := reg.Register(
//	    schema.New("User",
//	        schema.UUID("id").Primary(),
//	        schema.String("name"),
//	        schema.Class("manager", "User").Reference().Optional(),
//	        schema.Class("managedUsers", "User").Array().BackReference(),
//	    ),
//	)
//
// Registration freezes the schema. The registry is an explicit value passed
// through the call chain; there is no process-wide schema cache.
//
// RELATIONS:
//
// A forward reference stores the related primary key on the owning document.
// A back-reference is derived from the forward reference on the other side,
// either directly or through a pivot entity (Via). FindReverseReference pairs
// the two sides. It never guesses: zero or several candidates are reported as
// a SchemaError.
//
// For a pivot whose two forward references target the same type, declaration
// order is the contract: the first declared reference is the left participant
// and the second is the right participant.
package schema
