// Package vector implements the vector storage adapter as an HTTP REST
// client against a Qdrant-compatible collection API, grounded on the
// same plain net/http-client shape sse-rag-service uses to talk to its
// other sidecar services rather than importing a heavyweight SDK. Each
// request is sent once; this package does not retry.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

var _ store.Adapter = (*Store)(nil)

// Store is the vector backend adapter (spec.md §4.3: "vector: points
// keyed by chunk_id, payload carries document_id + text").
type Store struct {
	baseURL    string
	collection string
	dimensions int
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Store against the collection at baseURL. EnsureCollection
// must be called once before first use.
func New(baseURL, collection string, dimensions int, logger *zap.Logger) *Store {
	return &Store{
		baseURL:    baseURL,
		collection: collection,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// EnsureCollection creates the collection if it does not already exist,
// the way document-chunker eagerly runs its own schema DDL at startup.
func (s *Store) EnsureCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.dimensions,
			"distance": "Cosine",
		},
	}
	req, err := s.newRequest(ctx, http.MethodPut, "/collections/"+s.collection, body)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "create vector collection", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("create collection: unexpected status %d", resp.StatusCode))
	}
	return nil
}

// UpsertDocument is a no-op for the vector backend: points are keyed by
// chunk_id, and the document row carries no vector of its own.
func (s *Store) UpsertDocument(ctx context.Context, doc model.Document) error {
	return nil
}

// UpsertChunk writes a single point keyed by chunk.ID, skipping chunks
// that never produced an embedding (spec.md §4.3 fan-out: a missing
// embedding is not itself a vector-store failure).
func (s *Store) UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) error {
	if chunk.Enrichment == nil || len(chunk.Enrichment.Embedding) == 0 {
		return nil
	}

	point := map[string]interface{}{
		"points": []map[string]interface{}{
			{
				"id":     chunk.ID,
				"vector": chunk.Enrichment.Embedding,
				"payload": map[string]interface{}{
					"document_id": chunk.DocumentID,
					"chunk_index": chunk.Index,
					"text":        chunk.Text,
					"url":         doc.URL,
					"title":       doc.Title,
				},
			},
		},
	}

	req, err := s.newRequest(ctx, http.MethodPut, "/collections/"+s.collection+"/points", point)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "upsert vector point", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("upsert point: unexpected status %d", resp.StatusCode))
	}
	return nil
}

// DeleteDocument removes every point whose payload.document_id matches,
// via a filtered delete-by-payload call.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "document_id", "match": map[string]interface{}{"value": documentID}},
			},
		},
	}
	req, err := s.newRequest(ctx, http.MethodPost, "/collections/"+s.collection+"/points/delete", body)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "delete vector points", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("delete points: unexpected status %d", resp.StatusCode))
	}
	return nil
}

// Search is unsupported for a free-text query on the vector backend: the
// caller (internal/retrieval) is responsible for embedding the query
// first and calling SearchByVector instead.
func (s *Store) Search(ctx context.Context, query string, k int, filter store.Filter) ([]store.SearchHit, error) {
	return nil, apperr.New(apperr.InvalidInput, "vector backend requires SearchByVector, not Search")
}

type searchRequest struct {
	Vector []float32              `json:"vector"`
	Limit  int                    `json:"limit"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

type searchResponseResult struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type searchResponse struct {
	Result []searchResponseResult `json:"result"`
}

// SearchByVector runs a k-NN query for an already-embedded query vector,
// the retrieval-layer counterpart of Search.
func (s *Store) SearchByVector(ctx context.Context, queryVector []float32, k int, filter store.Filter) ([]store.SearchHit, error) {
	sr := searchRequest{Vector: queryVector, Limit: k}
	if filter.DocumentID != "" {
		sr.Filter = map[string]interface{}{
			"must": []map[string]interface{}{
				{"key": "document_id", "match": map[string]interface{}{"value": filter.DocumentID}},
			},
		}
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", sr)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, "vector search", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("vector search: unexpected status %d", resp.StatusCode))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, "decode vector search response", err)
	}

	hits := make([]store.SearchHit, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		documentID, _ := r.Payload["document_id"].(string)
		text, _ := r.Payload["text"].(string)
		hits = append(hits, store.SearchHit{
			ChunkID:    r.ID,
			DocumentID: documentID,
			Score:      r.Score,
			Text:       text,
			Payload:    r.Payload,
		})
	}
	return hits, nil
}

func (s *Store) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "marshal vector request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "build vector request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
