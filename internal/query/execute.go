package query

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/identity"
	"github.com/roach88/docmap/internal/mapping"
	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// row is a fetched document with the rows merged into it per relation.
type row struct {
	doc    wire.Document
	joined map[string][]*row
}

// execution is one run of a query. It owns the identity map and the
// reference factory for the instances it creates.
//
// Join strategy:
//
//   - Inner joins restrict the parent storage query to a key set fetched
//     up front. A forward reference is restricted to the keys of matching
//     targets, a back-reference to the reverse key values of matching
//     targets, and a pivot back-reference to the left keys of pivots whose
//     right key matches.
//   - Populating joins fetch the related rows of every parent in one storage
//     query, honoring the join's filter and sort, then apply the join's
//     skip and limit per parent in memory.
//
// The skip and limit of an inner join never affect which parents match.
type execution struct {
	rt       *Runtime
	identity *identity.Registry
	mapper   *mapping.Mapper
}

func newExecution(rt *Runtime) *execution {
	ex := &execution{rt: rt, identity: rt.Identity}
	if ex.identity == nil {
		ex.identity = identity.New()
	}
	ex.mapper = rt.mapper().With(mapping.WithReferenceFactory(ex.reference))
	return ex
}

// reference interns a placeholder so every reference to the same record
// resolves to one instance.
func (ex *execution) reference(target *schema.Schema, pk any) *entity.Entity {
	if e, ok := ex.identity.Lookup(target, pk); ok {
		return e
	}
	e := entity.NewReference(target, pk)
	if ex.rt.Hydrator != nil {
		e.Attach(ex.rt.Hydrator)
	}
	ex.identity.Remember(target, pk, e)
	return e
}

func joinParams(parent, own map[string]any) map[string]any {
	if len(own) == 0 {
		return parent
	}
	out := maps.Clone(parent)
	if out == nil {
		out = make(map[string]any, len(own))
	}
	maps.Copy(out, own)
	return out
}

// storeKey returns the store field holding the primary key of s.
func storeKey(s *schema.Schema) string {
	return s.PrimaryKeyName()
}

// where compiles the filter of m and the restrictions of its inner joins.
func (ex *execution) where(ctx context.Context, s *schema.Schema, m *Model, params map[string]any) (queryir.Predicate, error) {
	fc := &filterCompiler{mapper: ex.mapper, schema: s, params: params}
	pred, err := fc.compile(m.Filter)
	if err != nil {
		return nil, fmt.Errorf("%s filter: %w", s.TypeName(), err)
	}
	if !m.HasInnerJoins() {
		return pred, nil
	}

	preds := []queryir.Predicate{pred}
	for _, j := range m.Joins {
		if j.Kind != InnerJoin {
			continue
		}
		r, err := ex.restrict(ctx, s, j, params)
		if err != nil {
			return nil, err
		}
		preds = append(preds, r)
	}
	return queryir.AndOf(preds...), nil
}

// find builds the storage query for m. Paging is applied when paged is set.
func (ex *execution) find(ctx context.Context, s *schema.Schema, m *Model, params map[string]any, extra queryir.Predicate, paged bool) (queryir.Find, error) {
	pred, err := ex.where(ctx, s, m, params)
	if err != nil {
		return queryir.Find{}, err
	}
	f := queryir.Find{
		Collection: s.Name(),
		Filter:     queryir.AndOf(extra, pred),
		Projection: fetchFields(s, m),
	}
	for _, sf := range m.Sort {
		f.Sort = append(f.Sort, queryir.SortField{Field: sf.Field, Desc: sf.Desc})
	}
	if paged {
		f.Skip = m.Skip
		f.Limit = m.Limit
	}
	return f, nil
}

// fetchFields returns the projection for a partial model: the selected
// fields plus whatever merging needs.
func fetchFields(s *schema.Schema, m *Model) []string {
	if !m.IsPartial() {
		return nil
	}
	fields := slices.Clone(m.Select)
	fields = append(fields, storeKey(s), wire.IDField)
	for _, j := range m.Joins {
		if j.Populate && j.Property.IsReference() {
			fields = append(fields, j.Property.Name())
		}
	}
	slices.Sort(fields)
	return slices.Compact(fields)
}

func (ex *execution) fetch(ctx context.Context, f queryir.Find) ([]wire.Document, error) {
	docs, err := ex.rt.Storage.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	ex.rt.logger().Debug("storage find",
		"collection", f.Collection,
		"skip", f.Skip,
		"limit", f.Limit,
		"rows", len(docs),
	)
	return docs, nil
}

func (ex *execution) count(ctx context.Context, f queryir.Find) (int, error) {
	n, err := ex.rt.Storage.Count(ctx, f)
	if err != nil {
		return 0, err
	}
	ex.rt.logger().Debug("storage count",
		"collection", f.Collection,
		"skip", f.Skip,
		"limit", f.Limit,
		"count", n,
	)
	return n, nil
}

// rows fetches the records of s matching m and merges populated joins.
func (ex *execution) rows(ctx context.Context, s *schema.Schema, m *Model, params map[string]any, extra queryir.Predicate, paged bool) ([]*row, error) {
	f, err := ex.find(ctx, s, m, params, extra, paged)
	if err != nil {
		return nil, err
	}
	docs, err := ex.fetch(ctx, f)
	if err != nil {
		return nil, err
	}

	out := make([]*row, len(docs))
	for i, doc := range docs {
		out[i] = &row{doc: doc}
	}
	for _, j := range m.Joins {
		if !j.Populate {
			continue
		}
		if err := ex.merge(ctx, s, out, j, params); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// keySet collects distinct non-null values in first-seen order.
type keySet struct {
	seen   map[string]bool
	values []any
}

func newKeySet() *keySet {
	return &keySet{seen: make(map[string]bool)}
}

func (ks *keySet) add(v any) {
	k, ok := keyOf(v)
	if !ok || ks.seen[k] {
		return
	}
	ks.seen[k] = true
	ks.values = append(ks.values, v)
}

func (ks *keySet) has(v any) bool {
	k, ok := keyOf(v)
	return ok && ks.seen[k]
}

func keyOf(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	k, err := wire.CanonicalKey(v)
	return k, err == nil
}

// restrict compiles an inner join into a predicate on the parent.
func (ex *execution) restrict(ctx context.Context, s *schema.Schema, j *Join, params map[string]any) (queryir.Predicate, error) {
	p := j.Property
	target, err := p.ResolvedSchema()
	if err != nil {
		return nil, err
	}
	params = joinParams(params, j.Query.Parameters)
	match := &Model{Filter: j.Query.Filter, Joins: j.Query.Joins}

	matching := func(field string, extra queryir.Predicate) ([]wire.Document, error) {
		f, err := ex.find(ctx, target, match, params, extra, false)
		if err != nil {
			return nil, err
		}
		f.Projection = []string{field}
		return ex.fetch(ctx, f)
	}

	switch {
	case p.IsReference():
		targets, err := matching(storeKey(target), nil)
		if err != nil {
			return nil, err
		}
		keys := newKeySet()
		for _, doc := range targets {
			keys.add(doc[storeKey(target)])
		}
		if !p.IsArray() {
			return queryir.In{Field: p.Name(), Values: keys.values}, nil
		}

		parents, err := ex.fetch(ctx, queryir.Find{
			Collection: s.Name(),
			Filter:     queryir.Exists{Field: p.Name(), Exists: true},
			Projection: []string{storeKey(s), p.Name()},
		})
		if err != nil {
			return nil, err
		}
		matched := newKeySet()
		for _, doc := range parents {
			items, _ := doc[p.Name()].([]any)
			if slices.ContainsFunc(items, keys.has) {
				matched.add(doc[storeKey(s)])
			}
		}
		return queryir.In{Field: storeKey(s), Values: matched.values}, nil

	case p.IsBackReference():
		rel, err := s.Registry().ResolveBackReference(p)
		if err != nil {
			return nil, err
		}
		if !rel.IsPivot() {
			targets, err := matching(rel.Reverse.Name(), nil)
			if err != nil {
				return nil, err
			}
			owners := newKeySet()
			for _, doc := range targets {
				owners.add(doc[rel.Reverse.Name()])
			}
			return queryir.In{Field: storeKey(s), Values: owners.values}, nil
		}

		targets, err := matching(storeKey(target), nil)
		if err != nil {
			return nil, err
		}
		keys := newKeySet()
		for _, doc := range targets {
			keys.add(doc[storeKey(target)])
		}
		pivots, err := ex.fetch(ctx, queryir.Find{
			Collection: rel.Pivot.Name(),
			Filter:     queryir.In{Field: rel.Right.Name(), Values: keys.values},
			Projection: []string{rel.Left.Name()},
		})
		if err != nil {
			return nil, err
		}
		owners := newKeySet()
		for _, doc := range pivots {
			owners.add(doc[rel.Left.Name()])
		}
		return queryir.In{Field: storeKey(s), Values: owners.values}, nil
	}
	return nil, schema.NewNotAReference(s.TypeName(), p.Name())
}

// merge fetches the related rows of a populating join and attaches them to
// each parent row.
func (ex *execution) merge(ctx context.Context, s *schema.Schema, parents []*row, j *Join, params map[string]any) error {
	p := j.Property
	target, err := p.ResolvedSchema()
	if err != nil {
		return err
	}
	if j.Query.Skip < 0 {
		return fmt.Errorf("%s.%s join: invalid query: negative skip %d", s.TypeName(), p.Name(), j.Query.Skip)
	}
	if j.Query.Limit < 0 {
		return fmt.Errorf("%s.%s join: invalid query: negative limit %d", s.TypeName(), p.Name(), j.Query.Limit)
	}
	params = joinParams(params, j.Query.Parameters)
	attach := func(parent *row, related []*row) {
		if parent.joined == nil {
			parent.joined = make(map[string][]*row)
		}
		parent.joined[p.Name()] = page(related, j.Query.Skip, j.Query.Limit)
	}
	if len(parents) == 0 {
		return nil
	}

	switch {
	case p.IsReference():
		keys := newKeySet()
		for _, parent := range parents {
			if p.IsArray() {
				items, _ := parent.doc[p.Name()].([]any)
				for _, item := range items {
					keys.add(item)
				}
				continue
			}
			keys.add(parent.doc[p.Name()])
		}
		related, err := ex.rows(ctx, target, j.Query, params,
			queryir.In{Field: storeKey(target), Values: keys.values}, false)
		if err != nil {
			return err
		}
		byKey := indexBy(related, storeKey(target))

		for _, parent := range parents {
			if !p.IsArray() {
				k, _ := keyOf(parent.doc[p.Name()])
				if r, ok := byKey[k]; ok {
					attach(parent, []*row{r})
				} else {
					attach(parent, nil)
				}
				continue
			}
			items, _ := parent.doc[p.Name()].([]any)
			own := newKeySet()
			for _, item := range items {
				own.add(item)
			}
			attach(parent, filterRows(related, storeKey(target), own))
		}
		return nil

	case p.IsBackReference():
		rel, err := s.Registry().ResolveBackReference(p)
		if err != nil {
			return err
		}
		parentKeys := newKeySet()
		for _, parent := range parents {
			parentKeys.add(parent.doc[storeKey(s)])
		}

		if !rel.IsPivot() {
			related, err := ex.rows(ctx, target, withField(j.Query, rel.Reverse.Name()), params,
				queryir.In{Field: rel.Reverse.Name(), Values: parentKeys.values}, false)
			if err != nil {
				return err
			}
			groups := make(map[string][]*row)
			for _, r := range related {
				if k, ok := keyOf(r.doc[rel.Reverse.Name()]); ok {
					groups[k] = append(groups[k], r)
				}
			}
			for _, parent := range parents {
				k, _ := keyOf(parent.doc[storeKey(s)])
				attach(parent, groups[k])
			}
			return nil
		}

		pivots, err := ex.fetch(ctx, queryir.Find{
			Collection: rel.Pivot.Name(),
			Filter:     queryir.In{Field: rel.Left.Name(), Values: parentKeys.values},
			Projection: []string{rel.Left.Name(), rel.Right.Name()},
		})
		if err != nil {
			return err
		}
		rightKeys := newKeySet()
		perParent := make(map[string]*keySet)
		for _, doc := range pivots {
			left, ok := keyOf(doc[rel.Left.Name()])
			if !ok {
				continue
			}
			if perParent[left] == nil {
				perParent[left] = newKeySet()
			}
			perParent[left].add(doc[rel.Right.Name()])
			rightKeys.add(doc[rel.Right.Name()])
		}
		related, err := ex.rows(ctx, target, j.Query, params,
			queryir.In{Field: storeKey(target), Values: rightKeys.values}, false)
		if err != nil {
			return err
		}
		for _, parent := range parents {
			k, _ := keyOf(parent.doc[storeKey(s)])
			own := perParent[k]
			if own == nil {
				attach(parent, nil)
				continue
			}
			attach(parent, filterRows(related, storeKey(target), own))
		}
		return nil
	}
	return schema.NewNotAReference(s.TypeName(), p.Name())
}

// withField makes sure a partial model fetches field.
func withField(m *Model, field string) *Model {
	if !m.IsPartial() || slices.Contains(m.Select, field) {
		return m
	}
	cp := m.Clone()
	cp.Select = append(cp.Select, field)
	return cp
}

func indexBy(rows []*row, field string) map[string]*row {
	out := make(map[string]*row, len(rows))
	for _, r := range rows {
		if k, ok := keyOf(r.doc[field]); ok {
			out[k] = r
		}
	}
	return out
}

// filterRows returns the rows whose field is in keys, in row order.
func filterRows(rows []*row, field string, keys *keySet) []*row {
	var out []*row
	for _, r := range rows {
		if keys.has(r.doc[field]) {
			out = append(out, r)
		}
	}
	return out
}

func page(rows []*row, skip, limit int) []*row {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
