package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/identity"
	"github.com/roach88/docmap/internal/mapping"
	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// Storage executes compiled queries. *store.Store and *pgstore.Store
// implement it.
type Storage interface {
	Find(ctx context.Context, f queryir.Find) ([]wire.Document, error)
	Count(ctx context.Context, f queryir.Find) (int, error)
}

// Runtime carries what a query needs to execute.
type Runtime struct {
	Storage Storage
	Mapper  *mapping.Mapper
	Logger  *slog.Logger

	// Identity is the identity map results are registered in. A nil
	// Identity gives every execution its own map, so instances are shared
	// within one result set only.
	Identity *identity.Registry

	// Hydrator is attached to every instance the query creates.
	Hydrator entity.Hydrator
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rt.Logger
}

func (rt *Runtime) mapper() *mapping.Mapper {
	if rt.Mapper == nil {
		return mapping.New()
	}
	return rt.Mapper
}

// Query builds and runs a query against one entity type.
//
// Every builder method returns a new Query; the receiver is never modified,
// so a Query can be kept as a base and refined many times.
//
// Methods named Use* open a scoped builder for the joined type. Calls on a
// scoped builder refine the join's nested query; End returns to the parent.
// Terminal operations on a scoped builder run the whole query.
//
// Errors found while building (unknown property, join on a plain field)
// are kept on the Query and returned by the first terminal operation before
// anything reaches storage.
type Query struct {
	rt     *Runtime
	schema *schema.Schema
	model  *Model
	err    error

	parent    *Query
	joinIndex int
}

// New returns a query over every record of s.
func New(rt *Runtime, s *schema.Schema) *Query {
	return &Query{rt: rt, schema: s, model: &Model{}}
}

// Schema returns the type the builder is scoped to.
func (q *Query) Schema() *schema.Schema { return q.schema }

// Model returns a copy of the query description.
func (q *Query) Model() *Model { return q.model.Clone() }

// Err returns the first error recorded while building.
func (q *Query) Err() error { return q.err }

// Clone returns an independent copy of q.
func (q *Query) Clone() *Query {
	return q.with(func(*Model) {})
}

func (q *Query) with(fn func(m *Model)) *Query {
	cp := *q
	cp.model = q.model.Clone()
	fn(cp.model)
	return &cp
}

func (q *Query) fail(err error) *Query {
	if q.err != nil {
		return q
	}
	cp := *q
	cp.err = err
	return &cp
}

// Filter replaces the filter.
func (q *Query) Filter(f Filter) *Query {
	return q.with(func(m *Model) { m.Filter = f })
}

// Sort replaces the sort order.
func (q *Query) Sort(fields ...SortField) *Query {
	return q.with(func(m *Model) { m.Sort = fields })
}

// Skip skips the first n results.
func (q *Query) Skip(n int) *Query {
	return q.with(func(m *Model) { m.Skip = n })
}

// Limit returns at most n results. Zero means no limit.
func (q *Query) Limit(n int) *Query {
	return q.with(func(m *Model) { m.Limit = n })
}

// Select restricts results to the named fields.
func (q *Query) Select(fields ...string) *Query {
	return q.with(func(m *Model) { m.Select = fields })
}

// Parameter binds a value for Param(name).
func (q *Query) Parameter(name string, v any) *Query {
	return q.with(func(m *Model) {
		if m.Parameters == nil {
			m.Parameters = make(map[string]any)
		}
		m.Parameters[name] = v
	})
}

// Parameters binds several parameters at once.
func (q *Query) Parameters(params map[string]any) *Query {
	return q.with(func(m *Model) {
		if m.Parameters == nil {
			m.Parameters = make(map[string]any, len(params))
		}
		maps.Copy(m.Parameters, params)
	})
}

// Join adds a left join that only participates in filtering.
func (q *Query) Join(name string) *Query {
	return q.addJoin(name, LeftJoin, false).End()
}

// JoinWith adds a left join and populates the relation.
func (q *Query) JoinWith(name string) *Query {
	return q.addJoin(name, LeftJoin, true).End()
}

// InnerJoin keeps only records whose relation is non-empty, without
// populating it.
func (q *Query) InnerJoin(name string) *Query {
	return q.addJoin(name, InnerJoin, false).End()
}

// InnerJoinWith keeps only records whose relation is non-empty and
// populates it.
func (q *Query) InnerJoinWith(name string) *Query {
	return q.addJoin(name, InnerJoin, true).End()
}

// UseJoin is Join returning a builder scoped to the joined type.
func (q *Query) UseJoin(name string) *Query {
	return q.addJoin(name, LeftJoin, false)
}

// UseJoinWith is JoinWith returning a builder scoped to the joined type.
func (q *Query) UseJoinWith(name string) *Query {
	return q.addJoin(name, LeftJoin, true)
}

// UseInnerJoin is InnerJoin returning a builder scoped to the joined type.
func (q *Query) UseInnerJoin(name string) *Query {
	return q.addJoin(name, InnerJoin, false)
}

// UseInnerJoinWith is InnerJoinWith returning a builder scoped to the
// joined type.
func (q *Query) UseInnerJoinWith(name string) *Query {
	return q.addJoin(name, InnerJoin, true)
}

// GetJoin returns a builder scoped to an existing join.
func (q *Query) GetJoin(name string) *Query {
	if q.err != nil {
		return q.scope(nil, -1, &Model{})
	}
	j, idx := q.model.GetJoin(name)
	if j == nil {
		return q.fail(fmt.Errorf("no join on %s.%s added", q.schema.TypeName(), name)).scope(nil, -1, &Model{})
	}
	target, err := j.Property.ResolvedSchema()
	if err != nil {
		return q.fail(err).scope(nil, -1, &Model{})
	}
	return q.scope(target, idx, j.Query.Clone())
}

// JoinPath populates the relation at a dotted path such as
// "organisations.owner". Intermediate relations already joined keep their
// kind, missing ones are added with the kind of the last segment.
func (q *Query) JoinPath(path string, inner bool) *Query {
	return q.joinPath(strings.Split(path, "."), inner)
}

func (q *Query) joinPath(path []string, inner bool) *Query {
	name := path[0]
	if len(path) == 1 {
		if inner {
			return q.InnerJoinWith(name)
		}
		return q.JoinWith(name)
	}

	var scoped *Query
	switch j, _ := q.model.GetJoin(name); {
	case j != nil:
		scoped = q.GetJoin(name)
	case inner:
		scoped = q.UseInnerJoinWith(name)
	default:
		scoped = q.UseJoinWith(name)
	}
	return scoped.joinPath(path[1:], inner).End()
}

// End returns the parent builder with the scoped changes applied. On a
// root builder End returns q.
func (q *Query) End() *Query {
	if q.parent == nil {
		return q
	}
	p := q.parent.with(func(m *Model) {
		if q.joinIndex >= 0 && q.joinIndex < len(m.Joins) {
			m.Joins[q.joinIndex].Query = q.model.Clone()
		}
	})
	if q.err != nil {
		p = p.fail(q.err)
	}
	return p
}

// root ends every scope.
func (q *Query) root() *Query {
	for q.parent != nil {
		q = q.End()
	}
	return q
}

func (q *Query) scope(target *schema.Schema, idx int, m *Model) *Query {
	if target == nil {
		target = q.schema
	}
	return &Query{
		rt:        q.rt,
		schema:    target,
		model:     m,
		err:       q.err,
		parent:    q,
		joinIndex: idx,
	}
}

// addJoin adds or updates the join on name and returns the scoped builder.
func (q *Query) addJoin(name string, kind JoinKind, populate bool) *Query {
	if q.err != nil {
		return q.scope(nil, -1, &Model{})
	}
	p, err := q.schema.LookupProperty(name)
	if err != nil {
		return q.fail(err).scope(nil, -1, &Model{})
	}
	if !p.IsRelation() {
		return q.fail(schema.NewNotAReference(q.schema.TypeName(), name)).scope(nil, -1, &Model{})
	}
	target, err := p.ResolvedSchema()
	if err != nil {
		return q.fail(err).scope(nil, -1, &Model{})
	}
	if p.IsBackReference() {
		reg := q.schema.Registry()
		if reg == nil {
			return q.fail(fmt.Errorf("%s is not registered", q.schema.TypeName())).scope(nil, -1, &Model{})
		}
		if _, err := reg.ResolveBackReference(p); err != nil {
			return q.fail(err).scope(nil, -1, &Model{})
		}
	}

	var idx int
	parent := q.with(func(m *Model) {
		if j, i := m.GetJoin(name); j != nil {
			j.Kind = kind
			j.Populate = populate
			idx = i
			return
		}
		m.Joins = append(m.Joins, &Join{Property: p, Kind: kind, Populate: populate, Query: &Model{}})
		idx = len(m.Joins) - 1
	})
	return parent.scope(target, idx, parent.model.Joins[idx].Query.Clone())
}

// AsClass returns the terminal operations producing entity instances.
func (q *Query) AsClass() *Results[*entity.Entity] {
	return &Results[*entity.Entity]{q: q.root(), form: classForm}
}

// AsJSON returns the terminal operations producing plain maps.
func (q *Query) AsJSON() *Results[map[string]any] {
	return &Results[map[string]any]{q: q.root(), form: plainForm}
}

// AsRaw returns the terminal operations producing store documents.
func (q *Query) AsRaw() *Results[wire.Document] {
	return &Results[wire.Document]{q: q.root(), form: rawForm}
}

// Find returns every matching instance.
func (q *Query) Find(ctx context.Context) ([]*entity.Entity, error) {
	return q.AsClass().Find(ctx)
}

// FindOne returns the first matching instance or a NotFoundError.
func (q *Query) FindOne(ctx context.Context) (*entity.Entity, error) {
	return q.AsClass().FindOne(ctx)
}

// FindOneOrUndefined returns the first matching instance, if any.
func (q *Query) FindOneOrUndefined(ctx context.Context) (*entity.Entity, bool, error) {
	return q.AsClass().FindOneOrUndefined(ctx)
}

// FindField returns the value of one field for every matching record.
func (q *Query) FindField(ctx context.Context, name string) ([]any, error) {
	return q.AsClass().FindField(ctx, name)
}

// FindOneField returns the value of one field of the first match or a
// NotFoundError.
func (q *Query) FindOneField(ctx context.Context, name string) (any, error) {
	return q.AsClass().FindOneField(ctx, name)
}

// FindOneFieldOrUndefined returns the value of one field of the first
// match, if any.
func (q *Query) FindOneFieldOrUndefined(ctx context.Context, name string) (any, bool, error) {
	return q.AsClass().FindOneFieldOrUndefined(ctx, name)
}

// Count returns the number of matching records.
func (q *Query) Count(ctx context.Context) (int, error) {
	return q.AsClass().Count(ctx)
}

// Has reports whether any record matches.
func (q *Query) Has(ctx context.Context) (bool, error) {
	return q.AsClass().Has(ctx)
}

// Invalid returns a query that fails every terminal operation with err.
// It stands in for a query whose type could not be resolved.
func Invalid(rt *Runtime, err error) *Query {
	return &Query{rt: rt, schema: schema.New("invalid"), model: &Model{}, err: err}
}
