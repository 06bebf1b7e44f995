package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/docmap/internal/queryir"
	"github.com/roach88/docmap/internal/wire"
)

// Insert stores a document in a collection and returns its _id.
//
// A document without _id gets a fresh ObjectID. The caller's document is not
// modified.
func (s *Store) Insert(ctx context.Context, collection string, doc wire.Document) (any, error) {
	stored := wire.Clone(doc)
	if stored == nil {
		stored = wire.Document{}
	}
	if _, ok := stored[wire.IDField]; !ok {
		stored[wire.IDField] = wire.NewObjectID()
	}

	text, err := marshalDoc(stored)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc)
		VALUES (?, ?)
	`, collection, text)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}

	return stored[wire.IDField], nil
}

// Update replaces every document matching filter with doc and returns the
// number of documents replaced. Each replaced document keeps its _id and its
// position in insertion order.
func (s *Store) Update(ctx context.Context, collection string, filter queryir.Predicate, doc wire.Document) (int, error) {
	var updated int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
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

			text, err := marshalDoc(replacement)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE documents SET doc = ? WHERE seq = ?`, text, m.seq); err != nil {
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

	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return int(n), nil
}
