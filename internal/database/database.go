// Package database ties the schema registry, a storage backend and the
// query planner together.
//
// A Database is stateless: every query gets its own identity map, so one
// result set shares instances but two queries never do. A Session keeps one
// identity map across queries so every record resolves to one live instance
// for the session's lifetime.
//
// USAGE:
//
//	db := database.New(reg, st, database.WithLogger(logger))
//	marc, err := db.Query("User").Filter(query.Filter{"name": "marc"}).FindOne(ctx)
//
//	session := db.CreateSession()
//	items, err := session.Query("OrganisationMembership").JoinWith("user").Find(ctx)
package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/identity"
	"github.com/roach88/docmap/internal/mapping"
	"github.com/roach88/docmap/internal/query"
	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// Storage is a document store the database can read and write.
// *store.Store and *pgstore.Store implement it.
type Storage interface {
	query.Storage
	Insert(ctx context.Context, collection string, doc wire.Document) (any, error)
	Update(ctx context.Context, collection string, filter queryir.Predicate, doc wire.Document) (int, error)
	Delete(ctx context.Context, collection string, filter queryir.Predicate) (int, error)
}

// Database runs queries and persistence operations for registered types.
type Database struct {
	registry *schema.Registry
	storage  Storage
	mapper   *mapping.Mapper
	logger   *slog.Logger
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. Storage round-trips are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(db *Database) { db.logger = l }
}

// WithMapper sets the mapper used for conversions.
func WithMapper(m *mapping.Mapper) Option {
	return func(db *Database) { db.mapper = m }
}

// New returns a Database over storage for the types in reg.
func New(reg *schema.Registry, storage Storage, opts ...Option) *Database {
	db := &Database{
		registry: reg,
		storage:  storage,
		mapper:   mapping.New(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Registry returns the schema registry.
func (db *Database) Registry() *schema.Registry { return db.registry }

// Mapper returns the mapper used for conversions.
func (db *Database) Mapper() *mapping.Mapper { return db.mapper }

func (db *Database) runtime(ident *identity.Registry, h entity.Hydrator) *query.Runtime {
	return &query.Runtime{
		Storage:  db.storage,
		Mapper:   db.mapper,
		Logger:   db.logger,
		Identity: ident,
		Hydrator: h,
	}
}

func (db *Database) query(rt *query.Runtime, typeName string) *query.Query {
	s, err := db.registry.Get(typeName)
	if err != nil {
		return query.Invalid(rt, err)
	}
	return query.New(rt, s)
}

// Query starts a stateless query over typeName.
func (db *Database) Query(typeName string) *query.Query {
	return db.query(db.runtime(nil, db), typeName)
}

// CreateSession returns a session with instance pooling enabled.
func (db *Database) CreateSession() *Session {
	return &Session{db: db, EntityRegistry: identity.New()}
}

// Hydrate loads the remaining fields of a placeholder and upgrades it in
// place. Populated instances are left unchanged.
func (db *Database) Hydrate(ctx context.Context, e *entity.Entity) error {
	return db.hydrate(ctx, db.runtime(nil, db), e)
}

func (db *Database) hydrate(ctx context.Context, rt *query.Runtime, e *entity.Entity) error {
	if e.IsPopulated() {
		return nil
	}
	s := e.Schema()
	pk := primaryKey(e)
	if pk == nil {
		return fmt.Errorf("hydrate %s: instance has no primary key", s.TypeName())
	}

	found, err := query.New(rt, s).Filter(query.Filter{s.PrimaryKeyName(): pk}).FindOne(ctx)
	if err != nil {
		return fmt.Errorf("hydrate %s: %w", s.TypeName(), err)
	}
	if found != e {
		e.Populate(found.Values())
	}
	return nil
}

// Add inserts a new instance.
func (db *Database) Add(ctx context.Context, e *entity.Entity) error {
	s := e.Schema()
	doc, err := db.mapper.ClassToWire(e)
	if err != nil {
		return fmt.Errorf("add %s: %w", s.TypeName(), err)
	}
	if s.PrimaryKey() != nil && doc[s.PrimaryKeyName()] == nil {
		return fmt.Errorf("add %s: primary key %s is not set", s.TypeName(), s.PrimaryKeyName())
	}

	id, err := db.storage.Insert(ctx, s.Name(), doc)
	if err != nil {
		return fmt.Errorf("add %s: %w", s.TypeName(), err)
	}
	if s.PrimaryKey() == nil {
		if oid, ok := id.(wire.ObjectID); ok {
			e.SetLastKnownPK(oid.Hex())
		}
	} else {
		e.SetLastKnownPK(e.ID())
	}

	db.logger.Debug("entity added", "type", s.TypeName(), "collection", s.Name())
	return nil
}

// Update replaces the stored record of e, found by the primary key the
// store last knew it by.
func (db *Database) Update(ctx context.Context, e *entity.Entity) error {
	s := e.Schema()
	if e.State() != entity.Populated {
		return fmt.Errorf("update %s: instance is %s", s.TypeName(), e.State())
	}
	filter, err := db.keyFilter(e)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.TypeName(), err)
	}
	doc, err := db.mapper.ClassToWire(e)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.TypeName(), err)
	}

	n, err := db.storage.Update(ctx, s.Name(), filter, doc)
	if err != nil {
		return fmt.Errorf("update %s: %w", s.TypeName(), err)
	}
	if n == 0 {
		return &query.NotFoundError{Type: s.TypeName()}
	}
	if s.PrimaryKey() != nil {
		e.SetLastKnownPK(e.ID())
	}

	db.logger.Debug("entity updated", "type", s.TypeName(), "collection", s.Name())
	return nil
}

// Remove deletes the stored record of e. Removing a record that no longer
// exists is not an error.
func (db *Database) Remove(ctx context.Context, e *entity.Entity) error {
	s := e.Schema()
	filter, err := db.keyFilter(e)
	if err != nil {
		return fmt.Errorf("remove %s: %w", s.TypeName(), err)
	}
	n, err := db.storage.Delete(ctx, s.Name(), filter)
	if err != nil {
		return fmt.Errorf("remove %s: %w", s.TypeName(), err)
	}

	db.logger.Debug("entity removed", "type", s.TypeName(), "collection", s.Name(), "deleted", n)
	return nil
}

// keyFilter matches the stored record of e by its last known primary key.
func (db *Database) keyFilter(e *entity.Entity) (queryir.Predicate, error) {
	s := e.Schema()
	pk := primaryKey(e)
	if pk == nil {
		return nil, fmt.Errorf("instance has no primary key")
	}

	if s.PrimaryKey() == nil {
		hex, _ := pk.(string)
		oid, err := wire.ParseObjectID(hex)
		if err != nil {
			return nil, err
		}
		return queryir.Equals{Field: wire.IDField, Value: oid}, nil
	}

	v, err := db.mapper.ConvertPath(s, s.PrimaryKeyName(), pk, mapping.Class, mapping.Wire)
	if err != nil {
		return nil, err
	}
	return queryir.Equals{Field: s.PrimaryKeyName(), Value: v}, nil
}

// primaryKey returns the key the store knows e by, falling back to its
// current key for instances never loaded or saved.
func primaryKey(e *entity.Entity) any {
	if pk := e.LastKnownPK(); pk != nil {
		return pk
	}
	return e.ID()
}
