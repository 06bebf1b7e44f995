package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/wire"
)

// Find returns the documents matching f in deterministic order.
// Projection, when set, is applied to each decoded document.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Find(ctx context.Context, f queryir.Find) ([]wire.Document, error) {
	rows, err := s.find(ctx, s.db, f)
	if err != nil {
		return nil, err
	}

	docs := make([]wire.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, wire.Project(r.doc, f.Projection))
	}
	return docs, nil
}

// Count returns the number of documents matching f.
func (s *Store) Count(ctx context.Context, f queryir.Find) (int, error) {
	query, params, err := s.compiler.CompileCount(f)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", f.Collection, err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", f.Collection, err)
	}
	return n, nil
}

// storedDoc is a decoded row with its insertion sequence.
type storedDoc struct {
	seq int64
	doc wire.Document
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) find(ctx context.Context, q queryer, f queryir.Find) ([]storedDoc, error) {
	query, params, err := s.compiler.CompileSelect(f)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", f.Collection, err)
	}

	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", f.Collection, err)
	}
	defer rows.Close()

	var out []storedDoc
	for rows.Next() {
		var (
			seq  int64
			text string
		)
		if err := rows.Scan(&seq, &text); err != nil {
			return nil, fmt.Errorf("scan %s: %w", f.Collection, err)
		}
		doc, err := unmarshalDoc(text)
		if err != nil {
			return nil, fmt.Errorf("%s seq %d: %w", f.Collection, seq, err)
		}
		out = append(out, storedDoc{seq: seq, doc: doc})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", f.Collection, err)
	}

	return out, nil
}
