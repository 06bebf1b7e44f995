package query

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/mapping"
	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// filterCompiler turns a Filter into a queryir predicate for one schema.
//
// Keys are compiled in sorted order so the same filter always yields the
// same predicate tree. Literal values are converted from class to store form
// through the mapper; entities become their primary key.
type filterCompiler struct {
	mapper *mapping.Mapper
	schema *schema.Schema
	params map[string]any
}

func (c *filterCompiler) compile(f Filter) (queryir.Predicate, error) {
	if len(f) == 0 {
		return nil, nil
	}

	var preds []queryir.Predicate
	for _, key := range slices.Sorted(maps.Keys(f)) {
		v := f[key]
		switch key {
		case "$and", "$or":
			subs, err := c.compileList(key, v)
			if err != nil {
				return nil, err
			}
			if key == "$and" {
				preds = append(preds, queryir.And{Predicates: subs})
			} else {
				preds = append(preds, queryir.Or{Predicates: subs})
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, &FilterError{Message: "unsupported top-level operator " + key}
		}

		pred, err := c.compileField(key, v)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return queryir.AndOf(preds...), nil
}

func (c *filterCompiler) compileList(op string, v any) ([]queryir.Predicate, error) {
	items, ok := toSlice(v)
	if !ok {
		return nil, &FilterError{Message: op + " expects a list of filters"}
	}
	out := make([]queryir.Predicate, 0, len(items))
	for _, item := range items {
		sub, ok := asFilter(item)
		if !ok {
			return nil, &FilterError{Message: op + " expects a list of filters"}
		}
		pred, err := c.compile(sub)
		if err != nil {
			return nil, err
		}
		if pred == nil {
			pred = queryir.And{}
		}
		out = append(out, pred)
	}
	return out, nil
}

func (c *filterCompiler) compileField(field string, v any) (queryir.Predicate, error) {
	ops, ok := asFilter(v)
	if !ok || !isOperatorDoc(ops) {
		val, err := c.literal(field, v)
		if err != nil {
			return nil, err
		}
		return queryir.Equals{Field: field, Value: val}, nil
	}
	if _, isParam := ops["$parameter"]; isParam {
		val, err := c.literal(field, v)
		if err != nil {
			return nil, err
		}
		return queryir.Equals{Field: field, Value: val}, nil
	}

	var preds []queryir.Predicate
	for _, op := range slices.Sorted(maps.Keys(ops)) {
		arg := ops[op]
		var (
			pred queryir.Predicate
			err  error
		)
		switch op {
		case "$eq":
			var val any
			if val, err = c.literal(field, arg); err == nil {
				pred = queryir.Equals{Field: field, Value: val}
			}
		case "$ne", "$gt", "$gte", "$lt", "$lte":
			var val any
			if val, err = c.literal(field, arg); err == nil {
				pred = queryir.Compare{Field: field, Op: compareOps[op], Value: val}
			}
		case "$in", "$nin":
			var vals []any
			if vals, err = c.literals(field, arg); err == nil {
				pred = queryir.In{Field: field, Values: vals, Negate: op == "$nin"}
			}
		case "$exists":
			exists, ok := arg.(bool)
			if !ok {
				return nil, &FilterError{Field: field, Message: "$exists expects a boolean"}
			}
			pred = queryir.Exists{Field: field, Exists: exists}
		case "$not":
			var inner queryir.Predicate
			if inner, err = c.compileField(field, arg); err == nil {
				pred = queryir.Not{Predicate: inner}
			}
		default:
			return nil, &FilterError{Field: field, Message: "unsupported operator " + op}
		}
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return queryir.AndOf(preds...), nil
}

var compareOps = map[string]queryir.CompareOp{
	"$ne":  queryir.OpNe,
	"$gt":  queryir.OpGt,
	"$gte": queryir.OpGte,
	"$lt":  queryir.OpLt,
	"$lte": queryir.OpLte,
}

func (c *filterCompiler) literals(field string, v any) ([]any, error) {
	v, err := c.resolve(v)
	if err != nil {
		return nil, err
	}
	items, ok := toSlice(v)
	if !ok {
		return nil, &FilterError{Field: field, Message: "$in and $nin expect a list"}
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		val, err := c.literal(field, item)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// literal resolves parameters and converts v to the store form of field.
func (c *filterCompiler) literal(field string, v any) (any, error) {
	v, err := c.resolve(v)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	if field == wire.IDField && c.schema.Property(field) == nil {
		if s, ok := v.(string); ok && wire.IsValidObjectID(s) {
			return wire.ParseObjectID(s)
		}
		return v, nil
	}

	path := field
	if p := c.schema.Property(field); p != nil {
		if e, ok := v.(*entity.Entity); ok && !p.IsRelation() {
			v = e.ID()
		}
		if p.IsArray() {
			if _, isList := toSlice(v); !isList {
				path += ".0"
			}
		}
	}
	return c.mapper.ConvertPath(c.schema, path, v, mapping.Class, mapping.Wire)
}

// resolve replaces a parameter placeholder with its bound value.
func (c *filterCompiler) resolve(v any) (any, error) {
	f, ok := asFilter(v)
	if !ok || len(f) != 1 {
		return v, nil
	}
	name, ok := f["$parameter"].(string)
	if !ok {
		return v, nil
	}
	val, ok := c.params[name]
	if !ok {
		return nil, &ParameterError{Name: name}
	}
	return val, nil
}

func asFilter(v any) (Filter, bool) {
	switch f := v.(type) {
	case Filter:
		return f, true
	case map[string]any:
		return Filter(f), true
	}
	return nil, false
}

// isOperatorDoc reports whether every key of f is an operator.
func isOperatorDoc(f Filter) bool {
	if len(f) == 0 {
		return false
	}
	for k := range f {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// toSlice returns the elements of any slice value. Byte slices are binary
// values, not lists.
func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
