// Package pgstore provides PostgreSQL-backed document storage.
//
// It stores the same extended JSON documents as package store, in a jsonb
// column, and compiles queries with the querysql Postgres dialect. The two
// backends are interchangeable behind the database package.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/querysql"
	"github.com/roach88/docmap/internal/wire"
)

//go:embed schema.sql
var schemaSQL string

// Store provides document storage on PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	compiler *querysql.SQLCompiler
}

// Open connects to the database at url and creates the documents table if
// needed.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		pool:     pool,
		compiler: querysql.NewSQLCompiler(querysql.Postgres),
	}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Find returns the documents matching f in deterministic order.
// Projection, when set, is applied to each decoded document.
func (s *Store) Find(ctx context.Context, f queryir.Find) ([]wire.Document, error) {
	rows, err := s.find(ctx, s.pool, f)
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
	if err := s.pool.QueryRow(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", f.Collection, err)
	}
	return n, nil
}

// Insert stores a document in a collection and returns its _id.
// A document without _id gets a fresh ObjectID.
func (s *Store) Insert(ctx context.Context, collection string, doc wire.Document) (any, error) {
	stored := wire.Clone(doc)
	if stored == nil {
		stored = wire.Document{}
	}
	if _, ok := stored[wire.IDField]; !ok {
		stored[wire.IDField] = wire.NewObjectID()
	}

	data, err := wire.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO documents (collection, doc) VALUES ($1, $2::jsonb)`, collection, string(data))
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return stored[wire.IDField], nil
}

// Update replaces every document matching filter with doc, keeping each
// document's _id, and returns the number replaced.
func (s *Store) Update(ctx context.Context, collection string, filter queryir.Predicate, doc wire.Document) (int, error) {
	var updated int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		matches, err := s.find(ctx, tx, queryir.Find{Collection: collection, Filter: filter})
		if err != nil {
			return err
		}

		for _, m := range matches {
			replacement := wire.Clone(doc)
			if replacement == nil {
				replacement = wire.Document{}
			}
			if id, ok := m.doc[wire.IDField]; ok {
				replacement[wire.IDField] = id
			}

			data, err := wire.Marshal(replacement)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE documents SET doc = $1::jsonb WHERE seq = $2`, string(data), m.seq); err != nil {
				return fmt.Errorf("replace seq %d: %w", m.seq, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return updated, nil
}

// Delete removes every document matching filter and returns how many were
// removed. A nil filter empties the collection.
func (s *Store) Delete(ctx context.Context, collection string, filter queryir.Predicate) (int, error) {
	query, params, err := s.compiler.CompileDelete(collection, filter)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}

	tag, err := s.pool.Exec(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return int(tag.RowsAffected()), nil
}

type storedDoc struct {
	seq int64
	doc wire.Document
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) find(ctx context.Context, q querier, f queryir.Find) ([]storedDoc, error) {
	query, params, err := s.compiler.CompileSelect(f)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", f.Collection, err)
	}

	rows, err := q.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", f.Collection, err)
	}
	defer rows.Close()

	var out []storedDoc
	for rows.Next() {
		var (
			seq  int64
			data []byte
		)
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", f.Collection, err)
		}
		doc, err := wire.Unmarshal(data)
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
