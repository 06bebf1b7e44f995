package querysql

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/wire"
)

// Table is the single table every collection is stored in.
const Table = "documents"

// Dialect selects the SQL flavour the compiler emits.
type Dialect int

const (
	// SQLite stores documents as TEXT and reads them with json_extract.
	SQLite Dialect = iota
	// Postgres stores documents as JSONB and reads them with #> and #>>.
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "Dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// SQLCompiler compiles QueryIR to parameterized SQL.
//
// CRITICAL: Every SELECT includes ORDER BY ending in seq ASC, so results are
// deterministic even without a sort.
// CRITICAL: All values are parameterized (never interpolated). Field paths are
// parameterized too.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a new SQLCompiler for the given dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// CompileSelect converts a Find to a SELECT returning (seq, doc) rows.
// Returns (sql, params, error) tuple.
//
// Projection is not compiled: backends apply it to decoded documents.
//
// MANDATORY: Every query includes ORDER BY with seq as the final tiebreaker.
func (c *SQLCompiler) CompileSelect(f queryir.Find) (string, []any, error) {
	if err := queryir.Validate(f).Err(); err != nil {
		return "", nil, err
	}

	b := c.builder()
	where, err := b.where(f.Collection, f.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	orderBy := b.orderBy(f.Sort)

	sql := fmt.Sprintf("SELECT seq, doc FROM %s WHERE %s ORDER BY %s", Table, where, orderBy)
	sql += b.page(f.Skip, f.Limit)

	return sql, b.params, nil
}

// CompileCount converts a Find to a SELECT COUNT(*).
//
// Sort is irrelevant to a count and is dropped. When the Find pages its
// results the count runs over the page.
func (c *SQLCompiler) CompileCount(f queryir.Find) (string, []any, error) {
	if err := queryir.Validate(f).Err(); err != nil {
		return "", nil, err
	}

	b := c.builder()
	where, err := b.where(f.Collection, f.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	if f.Skip == 0 && f.Limit == 0 {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", Table, where), b.params, nil
	}

	sql := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT seq FROM %s WHERE %s ORDER BY seq ASC%s) AS page",
		Table, where, b.page(f.Skip, f.Limit))
	return sql, b.params, nil
}

// CompileDelete converts a collection and filter to a DELETE.
// A nil filter deletes the whole collection.
func (c *SQLCompiler) CompileDelete(collection string, filter queryir.Predicate) (string, []any, error) {
	if err := queryir.Validate(queryir.Find{Collection: collection, Filter: filter}).Err(); err != nil {
		return "", nil, err
	}

	b := c.builder()
	where, err := b.where(collection, filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", Table, where), b.params, nil
}

func (c *SQLCompiler) builder() *sqlBuilder {
	return &sqlBuilder{dialect: c.Dialect}
}

// sqlBuilder accumulates positional parameters while a statement is built.
type sqlBuilder struct {
	dialect Dialect
	params  []any
}

// bind appends a parameter and returns its placeholder.
func (b *sqlBuilder) bind(v any) string {
	b.params = append(b.params, v)
	if b.dialect == Postgres {
		return "$" + strconv.Itoa(len(b.params))
	}
	return "?"
}

// path binds a field path and returns the placeholder for it.
//
// SQLite receives a JSON path string ($."a"."b"[0]); Postgres receives a
// text[] of segments.
func (b *sqlBuilder) path(field string, suffix ...string) string {
	segments := append(strings.Split(field, "."), suffix...)
	if b.dialect == Postgres {
		return b.bind(segments) + "::text[]"
	}
	return b.bind(jsonPath(segments))
}

func jsonPath(segments []string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil {
			sb.WriteString("[" + seg + "]")
			continue
		}
		sb.WriteString(`."` + seg + `"`)
	}
	return sb.String()
}

// raw returns the expression reading a field as stored. SQLite yields SQL
// scalars (or JSON text for objects); Postgres yields jsonb.
func (b *sqlBuilder) raw(field string, suffix ...string) string {
	if b.dialect == Postgres {
		return "(doc #> " + b.path(field, suffix...) + ")"
	}
	return "json_extract(doc, " + b.path(field, suffix...) + ")"
}

// jsonType returns the expression naming the JSON type of a field, or NULL
// when the field is missing.
func (b *sqlBuilder) jsonType(field string) string {
	if b.dialect == Postgres {
		return "jsonb_typeof(doc #> " + b.path(field) + ")"
	}
	return "json_type(doc, " + b.path(field) + ")"
}

// negate wraps a condition so that an unknown (NULL) result counts as a
// non-match before negation. NOT of a missing field is therefore true.
func (b *sqlBuilder) negate(cond string) string {
	if b.dialect == Postgres {
		return "NOT COALESCE(" + cond + ", FALSE)"
	}
	return "NOT COALESCE(" + cond + ", 0)"
}

func (b *sqlBuilder) where(collection string, filter queryir.Predicate) (string, error) {
	where := "collection = " + b.bind(collection)
	if filter == nil {
		return where, nil
	}
	cond, err := b.predicate(filter)
	if err != nil {
		return "", err
	}
	return where + " AND " + cond, nil
}

// orderBy builds the ORDER BY list.
// MANDATORY: seq ASC is always last.
func (b *sqlBuilder) orderBy(sort []queryir.SortField) string {
	parts := make([]string, 0, len(sort)+1)
	for _, s := range sort {
		expr := b.raw(s.Field)
		switch {
		case b.dialect == Postgres && s.Desc:
			expr += " DESC NULLS LAST"
		case b.dialect == Postgres:
			expr += " ASC NULLS FIRST"
		case s.Desc:
			expr += " DESC"
		default:
			expr += " ASC"
		}
		parts = append(parts, expr)
	}
	parts = append(parts, "seq ASC")
	return strings.Join(parts, ", ")
}

func (b *sqlBuilder) page(skip, limit int) string {
	switch {
	case limit > 0:
		sql := " LIMIT " + b.bind(int64(limit))
		if skip > 0 {
			sql += " OFFSET " + b.bind(int64(skip))
		}
		return sql
	case skip > 0 && b.dialect == Postgres:
		return " OFFSET " + b.bind(int64(skip))
	case skip > 0:
		// SQLite needs a LIMIT before OFFSET; -1 means no limit.
		return " LIMIT -1 OFFSET " + b.bind(int64(skip))
	default:
		return ""
	}
}

// predicate compiles a predicate tree to a SQL condition.
func (b *sqlBuilder) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return b.equals(pred.Field, pred.Value)
	case queryir.Compare:
		return b.compare(pred)
	case queryir.In:
		return b.in(pred)
	case queryir.Exists:
		if pred.Exists {
			return b.jsonType(pred.Field) + " IS NOT NULL", nil
		}
		return b.jsonType(pred.Field) + " IS NULL", nil
	case queryir.And:
		return b.join(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return b.join(pred.Predicates, " OR ", "0 = 1")
	case queryir.Not:
		inner, err := b.predicate(pred.Predicate)
		if err != nil {
			return "", err
		}
		return b.negate(inner), nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (b *sqlBuilder) join(preds []queryir.Predicate, op, empty string) (string, error) {
	if len(preds) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(preds))
	for _, sub := range preds {
		sql, err := b.predicate(sub)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

func (b *sqlBuilder) equals(field string, value any) (string, error) {
	if value == nil {
		return b.equalsNull(field), nil
	}

	if b.dialect == Postgres {
		lit, err := jsonbLiteral(value)
		if err != nil {
			return "", err
		}
		return b.raw(field) + " = " + b.bind(lit) + "::jsonb", nil
	}

	s, err := scalarOf(value)
	if err != nil {
		return "", err
	}
	return b.guarded(field, s.kind, func(expr string) string {
		return expr + " = " + b.bind(s.sqliteParam())
	}), nil
}

// guarded applies cond to the SQLite extraction of a field. Numbers are
// guarded by json_type, since json_extract reads true and false as 1 and 0.
func (b *sqlBuilder) guarded(field string, k valueKind, cond func(expr string) string) string {
	if k != kindNumber {
		return cond(b.extract(field, k))
	}
	guard := b.jsonType(field) + " IN ('integer', 'real')"
	return "(" + guard + " AND " + cond(b.extract(field, k)) + ")"
}

func (b *sqlBuilder) compare(c queryir.Compare) (string, error) {
	if c.Op == queryir.OpNe {
		if c.Value == nil {
			return b.negate(b.equalsNull(c.Field)), nil
		}
		eq, err := b.equals(c.Field, c.Value)
		if err != nil {
			return "", err
		}
		return b.negate(eq), nil
	}

	switch c.Op {
	case queryir.OpGt, queryir.OpGte, queryir.OpLt, queryir.OpLte:
	default:
		return "", fmt.Errorf("unknown operator %q", c.Op)
	}

	s, err := scalarOf(c.Value)
	if err != nil {
		return "", err
	}
	if s.kind == kindBool {
		return "", fmt.Errorf("field %q: ordered comparison on a boolean", c.Field)
	}

	op := string(c.Op)
	if b.dialect == Postgres {
		switch s.kind {
		case kindNumber:
			lit, err := jsonbLiteral(c.Value)
			if err != nil {
				return "", err
			}
			guard := b.jsonType(c.Field) + " = 'number'"
			return "(" + guard + " AND " + b.raw(c.Field) + " " + op + " " + b.bind(lit) + "::jsonb)", nil
		case kindString:
			guard := b.jsonType(c.Field) + " = 'string'"
			return "(" + guard + " AND " + b.text(c.Field) + " " + op + " " + b.bind(s.param) + ")", nil
		default:
			return b.text(c.Field, s.kind.suffix()...) + " " + op + " " + b.bind(s.param), nil
		}
	}

	switch s.kind {
	case kindNumber:
		return b.guarded(c.Field, s.kind, func(expr string) string {
			return expr + " " + op + " " + b.bind(s.param)
		}), nil
	case kindString:
		guard := b.jsonType(c.Field) + " = 'text'"
		return "(" + guard + " AND " + b.extract(c.Field, s.kind) + " " + op + " " + b.bind(s.param) + ")", nil
	default:
		return b.extract(c.Field, s.kind) + " " + op + " " + b.bind(s.param), nil
	}
}

func (b *sqlBuilder) in(in queryir.In) (string, error) {
	if len(in.Values) == 0 {
		if in.Negate {
			return "1 = 1", nil
		}
		return "0 = 1", nil
	}

	var cond string
	if b.dialect == Postgres {
		expr := b.raw(in.Field)
		placeholders := make([]string, 0, len(in.Values))
		for _, v := range in.Values {
			lit, err := jsonbLiteral(v)
			if err != nil {
				return "", err
			}
			placeholders = append(placeholders, b.bind(lit)+"::jsonb")
		}
		cond = expr + " IN (" + strings.Join(placeholders, ", ") + ")"
	} else {
		// Each kind reads the field differently, so values are grouped by
		// kind in first-seen order.
		var kinds []valueKind
		groups := map[valueKind][]any{}
		for _, v := range in.Values {
			s, err := scalarOf(v)
			if err != nil {
				return "", err
			}
			if _, seen := groups[s.kind]; !seen {
				kinds = append(kinds, s.kind)
			}
			groups[s.kind] = append(groups[s.kind], s.sqliteParam())
		}

		parts := make([]string, 0, len(kinds))
		for _, k := range kinds {
			parts = append(parts, b.guarded(in.Field, k, func(expr string) string {
				placeholders := make([]string, 0, len(groups[k]))
				for _, p := range groups[k] {
					placeholders = append(placeholders, b.bind(p))
				}
				return expr + " IN (" + strings.Join(placeholders, ", ") + ")"
			}))
		}
		cond = strings.Join(parts, " OR ")
		if len(parts) > 1 {
			cond = "(" + cond + ")"
		}
	}

	if in.Negate {
		return b.negate(cond), nil
	}
	return cond, nil
}

// extract returns the SQLite expression reading a field as the given kind.
// Booleans are read through json_type so that 1 and true stay distinct.
func (b *sqlBuilder) extract(field string, k valueKind) string {
	if k == kindBool {
		return b.jsonType(field)
	}
	return b.raw(field, k.suffix()...)
}

// text returns the Postgres expression reading a field as text.
func (b *sqlBuilder) text(field string, suffix ...string) string {
	return "(doc #>> " + b.path(field, suffix...) + `) COLLATE "C"`
}

// equalsNull matches a field that is null or missing.
func (b *sqlBuilder) equalsNull(field string) string {
	if b.dialect == Postgres {
		return "COALESCE(" + b.jsonType(field) + ", 'null') = 'null'"
	}
	return b.raw(field) + " IS NULL"
}

// valueKind classifies wire scalars by how they are stored in JSON.
type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
	kindDate
	kindObjectID
	kindBinary
)

// suffix is the path inside the extended JSON object holding the comparable
// text of special values.
func (k valueKind) suffix() []string {
	switch k {
	case kindDate:
		return []string{"$date"}
	case kindObjectID:
		return []string{"$oid"}
	case kindBinary:
		return []string{"$binary", "base64"}
	default:
		return nil
	}
}

type scalar struct {
	kind  valueKind
	param any
}

// sqliteParam is the parameter compared against extract(). Booleans compare
// against the json_type name.
func (s scalar) sqliteParam() any {
	if s.kind == kindBool {
		if s.param.(bool) {
			return "true"
		}
		return "false"
	}
	return s.param
}

func scalarOf(v any) (scalar, error) {
	switch val := v.(type) {
	case string:
		return scalar{kindString, val}, nil
	case bool:
		return scalar{kindBool, val}, nil
	case int:
		return scalar{kindNumber, int64(val)}, nil
	case int32:
		return scalar{kindNumber, int64(val)}, nil
	case int64:
		return scalar{kindNumber, val}, nil
	case float32:
		return scalar{kindNumber, float64(val)}, nil
	case float64:
		return scalar{kindNumber, val}, nil
	case time.Time:
		return scalar{kindDate, val.UTC().Format(wire.DateLayout)}, nil
	case wire.ObjectID:
		return scalar{kindObjectID, val.Hex()}, nil
	case wire.Binary:
		return scalar{kindBinary, base64.StdEncoding.EncodeToString(val.Data)}, nil
	default:
		return scalar{}, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

func jsonbLiteral(v any) (string, error) {
	data, err := wire.MarshalValue(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
