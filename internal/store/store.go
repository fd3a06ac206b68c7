// Package store defines the uniform contract implemented by the three
// storage backends (spec.md §4.3, component C3): relational, vector,
// and lexical.
package store

import (
	"context"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// SearchHit is one result row from Search, normalized across backends.
type SearchHit struct {
	ChunkID    string
	DocumentID string
	Score      float64
	Text       string
	Payload    map[string]interface{}
}

// Filter narrows a Search call; zero value means unfiltered.
type Filter struct {
	DocumentID string
}

// Adapter is the contract every storage backend implements (spec.md
// §4.3: "A single contract — upsert(document), upsert_chunk(...),
// delete_document(id), search(...)").
type Adapter interface {
	UpsertDocument(ctx context.Context, doc model.Document) error
	UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) error
	DeleteDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, query string, k int, filter Filter) ([]SearchHit, error)
}
