package domain

import (
	"fmt"
	"regexp"
)

// Document is a unit of source text with opaque metadata carried into its chunks.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Chunk is a contiguous slice of a document's content.
type Chunk struct {
	Text     string
	Document int // position of the source document in the input
	Index    int // position of the chunk within its document
	Metadata map[string]string
}

// IndexedEntry pairs a chunk with its embedding.
type IndexedEntry struct {
	Chunk  Chunk
	Vector []float32
}

// QueryResult is a single similarity hit. Score is the cosine distance
// between the query and the chunk: lower is closer.
type QueryResult struct {
	Text     string
	Score    float64
	Metadata map[string]string
}

var collectionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

// ValidateCollectionName checks that name is usable as a key segment and a Qdrant collection name.
func ValidateCollectionName(name string) error {
	if !collectionNameRegex.MatchString(name) {
		return fmt.Errorf("collection name %q: %w", name, ErrInvalidInput)
	}
	return nil
}
