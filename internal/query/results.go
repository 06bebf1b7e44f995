package query

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/mapping"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

type form int

const (
	classForm form = iota
	plainForm
	rawForm
)

// Results runs a query and returns records in one representation:
// *entity.Entity instances, plain maps or store documents.
//
// Visibility of the store identifier _id:
//   - instances carry it only when the type has no primary key
//   - plain maps never carry it
//   - store documents carry it when selected or when the type has no
//     primary key
type Results[T any] struct {
	q    *Query
	form form
}

// run executes m and converts every row.
func (r *Results[T]) run(ctx context.Context, m *Model) ([]T, error) {
	if r.q.err != nil {
		return nil, r.q.err
	}
	ex := newExecution(r.q.rt)
	rows, err := ex.rows(ctx, r.q.schema, m, m.Parameters, nil, true)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for _, rw := range rows {
		v, err := ex.convert(r.q.schema, m, rw, r.form)
		if err != nil {
			return nil, err
		}
		out = append(out, v.(T))
	}
	return out, nil
}

// Find returns every matching record.
func (r *Results[T]) Find(ctx context.Context) ([]T, error) {
	return r.run(ctx, r.q.model)
}

// FindOne returns the first matching record or a NotFoundError.
func (r *Results[T]) FindOne(ctx context.Context) (T, error) {
	v, ok, err := r.FindOneOrUndefined(ctx)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, &NotFoundError{Type: r.q.schema.TypeName()}
	}
	return v, nil
}

// FindOneOrUndefined returns the first matching record, if any.
func (r *Results[T]) FindOneOrUndefined(ctx context.Context) (T, bool, error) {
	var zero T
	m := r.q.model.Clone()
	m.Limit = 1
	items, err := r.run(ctx, m)
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// FindField returns the value of name for every matching record, in class
// form. Records without the field yield nil.
func (r *Results[T]) FindField(ctx context.Context, name string) ([]any, error) {
	return r.fields(ctx, r.q.model, name)
}

// FindOneField returns the value of name of the first match or a
// NotFoundError.
func (r *Results[T]) FindOneField(ctx context.Context, name string) (any, error) {
	v, ok, err := r.FindOneFieldOrUndefined(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Type: r.q.schema.TypeName()}
	}
	return v, nil
}

// FindOneFieldOrUndefined returns the value of name of the first match, if
// any.
func (r *Results[T]) FindOneFieldOrUndefined(ctx context.Context, name string) (any, bool, error) {
	m := r.q.model.Clone()
	m.Limit = 1
	values, err := r.fields(ctx, m, name)
	if err != nil || len(values) == 0 {
		return nil, false, err
	}
	return values[0], true, nil
}

func (r *Results[T]) fields(ctx context.Context, m *Model, name string) ([]any, error) {
	if r.q.err != nil {
		return nil, r.q.err
	}
	m = m.Clone()
	m.Select = []string{name}
	m.Joins = slices.DeleteFunc(m.Joins, func(j *Join) bool { return j.Kind != InnerJoin })
	for _, j := range m.Joins {
		j.Populate = false
	}

	ex := newExecution(r.q.rt)
	rows, err := ex.rows(ctx, r.q.schema, m, m.Parameters, nil, true)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, rw := range rows {
		v, err := ex.mapper.ConvertPath(r.q.schema, name, rw.doc[name], mapping.Wire, mapping.Class)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Count returns the number of matching records. Skip and limit apply.
func (r *Results[T]) Count(ctx context.Context) (int, error) {
	return r.count(ctx, r.q.model)
}

// Has reports whether any record matches.
func (r *Results[T]) Has(ctx context.Context) (bool, error) {
	m := r.q.model.Clone()
	m.Limit = 1
	n, err := r.count(ctx, m)
	return n > 0, err
}

func (r *Results[T]) count(ctx context.Context, m *Model) (int, error) {
	if r.q.err != nil {
		return 0, r.q.err
	}
	ex := newExecution(r.q.rt)
	f, err := ex.find(ctx, r.q.schema, m, m.Parameters, nil, true)
	if err != nil {
		return 0, err
	}
	f.Projection = nil
	return ex.count(ctx, f)
}

// convert turns a row into the requested representation.
func (ex *execution) convert(s *schema.Schema, m *Model, rw *row, f form) (any, error) {
	switch f {
	case plainForm:
		return ex.plain(s, m, rw)
	case rawForm:
		return ex.raw(s, m, rw), nil
	}
	if m.IsPartial() {
		values, err := ex.mapper.PartialWireToClass(s, selected(rw.doc, m.Select))
		if err != nil {
			return nil, err
		}
		return ex.partialInstance(s, m, rw, values)
	}
	return ex.instance(s, m, rw)
}

// instance returns the registered instance for a full row, upgrading a
// placeholder in place. A populated instance already in the identity map
// keeps its field values.
func (ex *execution) instance(s *schema.Schema, m *Model, rw *row) (*entity.Entity, error) {
	fresh, err := ex.mapper.WireToClass(s, rw.doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.TypeName(), err)
	}
	pk := fresh.ID()

	e := fresh
	if known, ok := ex.identity.Lookup(s, pk); ok {
		if !known.IsPopulated() {
			known.Populate(fresh.Values())
		}
		known.SetLastKnownPK(pk)
		e = known
	} else {
		if ex.rt.Hydrator != nil {
			e.Attach(ex.rt.Hydrator)
		}
		ex.identity.Remember(s, pk, e)
	}

	if err := ex.attachRelations(s, m, rw, e); err != nil {
		return nil, err
	}
	return e, nil
}

// partialInstance returns a partial instance for a selected row. A
// registered instance with the selected primary key receives the selected
// fields instead.
func (ex *execution) partialInstance(s *schema.Schema, m *Model, rw *row, values map[string]any) (*entity.Entity, error) {
	e, ok := ex.identity.Lookup(s, values[s.PrimaryKeyName()])
	if ok {
		e.PopulatePartial(values)
	} else {
		e = entity.NewPartial(s)
		e.PopulatePartial(values)
		if ex.rt.Hydrator != nil {
			e.Attach(ex.rt.Hydrator)
		}
	}
	if err := ex.attachRelations(s, m, rw, e); err != nil {
		return nil, err
	}
	return e, nil
}

// attachRelations sets every populated join on e. Joins with a selection
// yield maps in class form instead of instances.
func (ex *execution) attachRelations(s *schema.Schema, m *Model, rw *row, e *entity.Entity) error {
	for _, j := range m.Joins {
		if !j.Populate {
			continue
		}
		target, err := j.Property.ResolvedSchema()
		if err != nil {
			return err
		}
		related := rw.joined[j.Property.Name()]

		items := make([]any, 0, len(related))
		for _, rr := range related {
			var v any
			if j.Query.IsPartial() {
				v, err = ex.mapper.PartialWireToClass(target, selected(rr.doc, j.Query.Select))
			} else {
				v, err = ex.instance(target, j.Query, rr)
			}
			if err != nil {
				return err
			}
			items = append(items, v)
		}
		e.SetRelation(j.Property.Name(), relationValue(j, items), coverage(j))
	}
	return nil
}

// coverage reports whether a join loaded the whole relation.
func coverage(j *Join) entity.Coverage {
	if j.Query.IsRestricted() {
		return entity.Restricted
	}
	return entity.Complete
}

// relationValue shapes merged items for a relation: a single value or nil
// for single relations, a typed slice for collections.
func relationValue(j *Join, items []any) any {
	if !j.Property.IsArray() {
		if len(items) == 0 {
			return nil
		}
		return items[0]
	}
	if j.Query.IsPartial() {
		out := make([]map[string]any, len(items))
		for i, it := range items {
			out[i] = it.(map[string]any)
		}
		return out
	}
	out := make([]*entity.Entity, len(items))
	for i, it := range items {
		out[i] = it.(*entity.Entity)
	}
	return out
}

// plain converts a row to plain data with merged relations as nested maps.
func (ex *execution) plain(s *schema.Schema, m *Model, rw *row) (map[string]any, error) {
	var (
		out map[string]any
		err error
	)
	if m.IsPartial() {
		out, err = ex.mapper.PartialWireToPlain(s, selected(rw.doc, m.Select))
	} else {
		out, err = ex.mapper.WireToPlain(s, rw.doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.TypeName(), err)
	}
	delete(out, wire.IDField)

	for _, j := range m.Joins {
		if !j.Populate {
			continue
		}
		target, err := j.Property.ResolvedSchema()
		if err != nil {
			return nil, err
		}
		related := rw.joined[j.Property.Name()]
		items := make([]map[string]any, 0, len(related))
		for _, rr := range related {
			item, err := ex.plain(target, j.Query, rr)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		switch {
		case j.Property.IsArray():
			out[j.Property.Name()] = items
		case len(items) > 0:
			out[j.Property.Name()] = items[0]
		default:
			out[j.Property.Name()] = nil
		}
	}
	return out, nil
}

// raw returns the stored document with merged relations embedded.
func (ex *execution) raw(s *schema.Schema, m *Model, rw *row) wire.Document {
	var out wire.Document
	if m.IsPartial() {
		out = selected(rw.doc, m.Select)
	} else {
		out = wire.Clone(rw.doc)
	}
	if s.PrimaryKey() != nil && !slices.Contains(m.Select, wire.IDField) {
		delete(out, wire.IDField)
	}

	for _, j := range m.Joins {
		if !j.Populate {
			continue
		}
		target, err := j.Property.ResolvedSchema()
		if err != nil {
			continue
		}
		related := rw.joined[j.Property.Name()]
		items := make([]any, len(related))
		for i, rr := range related {
			items[i] = ex.raw(target, j.Query, rr)
		}
		switch {
		case j.Property.IsArray():
			out[j.Property.Name()] = items
		case len(items) > 0:
			out[j.Property.Name()] = items[0]
		default:
			out[j.Property.Name()] = nil
		}
	}
	return out
}

// selected returns the selected fields of doc.
func selected(doc wire.Document, fields []string) wire.Document {
	return wire.Project(doc, fields)
}
