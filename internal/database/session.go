package database

import (
	"context"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/identity"
	"github.com/roach88/docmap/internal/query"
)

// Session is a unit of work with its own identity map.
//
// While pooling is enabled every query of the session registers its results
// in EntityRegistry, so a record loaded twice is the same instance and
// placeholders resolve to instances the session already knows. A Session is
// not safe for concurrent use.
type Session struct {
	db *Database

	// EntityRegistry is the identity map shared by the session's queries.
	EntityRegistry *identity.Registry

	// DisabledInstancePooling gives every query its own identity map.
	DisabledInstancePooling bool
}

// Database returns the database the session was created from.
func (s *Session) Database() *Database { return s.db }

func (s *Session) runtime() *query.Runtime {
	if s.DisabledInstancePooling {
		return s.db.runtime(nil, s)
	}
	return s.db.runtime(s.EntityRegistry, s)
}

// Query starts a query bound to the session.
func (s *Session) Query(typeName string) *query.Query {
	return s.db.query(s.runtime(), typeName)
}

// Hydrate loads the remaining fields of a placeholder through the session.
func (s *Session) Hydrate(ctx context.Context, e *entity.Entity) error {
	return s.db.hydrate(ctx, s.runtime(), e)
}

// Add inserts e and registers it in the session.
func (s *Session) Add(ctx context.Context, e *entity.Entity) error {
	if err := s.db.Add(ctx, e); err != nil {
		return err
	}
	if !s.DisabledInstancePooling {
		s.EntityRegistry.Remember(e.Schema(), e.LastKnownPK(), e)
		e.Attach(s)
	}
	return nil
}

// Update replaces the stored record of e. A registered instance is
// re-registered under its new primary key.
func (s *Session) Update(ctx context.Context, e *entity.Entity) error {
	known := s.EntityRegistry.IsKnown(e.Schema(), e)
	if known {
		s.EntityRegistry.Forget(e.Schema(), e)
	}
	err := s.db.Update(ctx, e)
	if known {
		s.EntityRegistry.Remember(e.Schema(), e.LastKnownPK(), e)
	}
	return err
}

// Remove deletes the stored record of e and drops it from the session.
func (s *Session) Remove(ctx context.Context, e *entity.Entity) error {
	if err := s.db.Remove(ctx, e); err != nil {
		return err
	}
	s.EntityRegistry.Forget(e.Schema(), e)
	return nil
}
