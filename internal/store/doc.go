// Package store provides SQLite-backed document storage.
//
// Every collection lives in one documents table:
//
//	documents(seq INTEGER PRIMARY KEY AUTOINCREMENT, collection TEXT, doc TEXT)
//
// Documents are stored as extended JSON (see package wire), so ObjectIDs,
// binaries and dates survive a round trip and can be compared in SQL.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - All queries are compiled by querysql and end in ORDER BY ..., seq ASC
//   - Documents without a sort come back in insertion order
//
// Primary Keys
//   - Insert assigns a fresh ObjectID to _id when the document has none
//   - Update replaces a document but keeps its _id
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Two drivers are supported: github.com/mattn/go-sqlite3 (cgo, default) and
// modernc.org/sqlite (pure Go), selected with WithDriver.
package store
