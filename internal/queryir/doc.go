// Package queryir provides the storage query intermediate representation.
//
// QueryIR is the contract between the join planner and storage backends.
// The planner compiles a query description with its join tree into one or
// more Find values; every backend (SQLite, PostgreSQL) executes a Find and
// nothing else.
//
// ARCHITECTURE:
//
//	[query builder] → [join planner] → [Find] → [querysql] → SQLite
//	                                          → [querysql] → PostgreSQL
//
// A Find addresses one collection and carries a filter predicate tree, an
// ordered sort specification, skip/limit and an optional field projection.
// Joins never reach storage: the planner resolves them into In predicates
// over key sets.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only types
// in this package implement it, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Compare:
//	case In:
//	case Exists:
//	case And, Or, Not:
//	}
//
// VALUES:
//
// Literal values are wire values (see package wire): strings, float64, int64,
// booleans, time.Time, wire.ObjectID and wire.Binary. Values are never
// interpolated into backend query text.
//
// FIELD PATHS:
//
// Fields are dot paths into the stored document ("name", "owner",
// "children.0.label"). Numeric segments index arrays.
package queryir
