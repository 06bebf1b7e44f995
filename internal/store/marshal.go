package store

import (
	"fmt"

	"github.com/roach88/docmap/internal/wire"
)

// marshalDoc converts a wire document to extended JSON TEXT for storage.
// Keys are written in sorted order so identical documents store identical
// text.
func marshalDoc(doc wire.Document) (string, error) {
	data, err := wire.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(data), nil
}

// unmarshalDoc converts stored TEXT back to a wire document.
func unmarshalDoc(text string) (wire.Document, error) {
	doc, err := wire.Unmarshal([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}
