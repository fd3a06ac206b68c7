// Package lexical implements the lexical storage adapter as an HTTP REST
// client against a BM25-style index service, mirroring the same small
// net/http wrapper shape as internal/store/vector rather than pulling in
// a search-engine SDK the examples never use directly.
package lexical

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

// Store is the lexical backend adapter (spec.md §4.3: "lexical: full-text
// index keyed by chunk_id; success means index existence, not a rank
// guarantee").
type Store struct {
	baseURL    string
	index      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Store against the named index.
func New(baseURL, index string, logger *zap.Logger) *Store {
	return &Store{
		baseURL:    baseURL,
		index:      index,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Healthy reports whether the lexical service answers GET /health with a
// non-error status. The retriever does not call it; its degraded mode
// is triggered by a failed Search instead.
func (s *Store) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

// UpsertDocument is a no-op: the lexical backend indexes chunk text only.
func (s *Store) UpsertDocument(ctx context.Context, doc model.Document) error {
	return nil
}

// UpsertChunk indexes a chunk's text under its chunk_id. Success here
// means the document exists in the index, not any ranking guarantee.
func (s *Store) UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) error {
	body := map[string]interface{}{
		"id":          chunk.ID,
		"document_id": chunk.DocumentID,
		"text":        chunk.Text,
		"url":         doc.URL,
		"title":       doc.Title,
	}
	req, err := s.newRequest(ctx, http.MethodPost, "/index/"+s.index, body)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "index chunk", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("index chunk: unexpected status %d", resp.StatusCode))
	}
	return nil
}

// DeleteDocument removes every indexed chunk belonging to documentID.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/index/"+s.index+"/documents/"+documentID, nil)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, "build delete request", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, "delete indexed document", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("delete document: unexpected status %d", resp.StatusCode))
	}
	return nil
}

type searchRequest struct {
	Query  string                 `json:"query"`
	Limit  int                    `json:"limit"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

type searchResponseHit struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type searchResponse struct {
	Hits []searchResponseHit `json:"hits"`
}

// Search runs a BM25 query against the index.
func (s *Store) Search(ctx context.Context, query string, k int, filter store.Filter) ([]store.SearchHit, error) {
	sr := searchRequest{Query: query, Limit: k}
	if filter.DocumentID != "" {
		sr.Filter = map[string]interface{}{"document_id": filter.DocumentID}
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/search", sr)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, "lexical search", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.UpstreamUnavailable, fmt.Sprintf("lexical search: unexpected status %d", resp.StatusCode))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, "decode lexical search response", err)
	}

	hits := make([]store.SearchHit, 0, len(parsed.Hits))
	for _, h := range parsed.Hits {
		hits = append(hits, store.SearchHit{
			ChunkID:    h.ID,
			DocumentID: h.DocumentID,
			Score:      h.Score,
			Text:       h.Text,
		})
	}
	return hits, nil
}

func (s *Store) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "marshal lexical request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "build lexical request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
