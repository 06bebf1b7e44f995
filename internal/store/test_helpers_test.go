package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/docmap/internal/wire"
)

// createTestStore creates a new store in a temporary directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertDocs inserts documents into a collection and returns their ids.
func insertDocs(t *testing.T, s *Store, collection string, docs ...wire.Document) []any {
	t.Helper()
	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		id, err := s.Insert(context.Background(), collection, doc)
		if err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
