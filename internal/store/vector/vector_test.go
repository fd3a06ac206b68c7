package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

func TestUpsertChunk_SkipsMissingEmbedding(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "chunks", 8, zap.NewNop())
	err := s.UpsertChunk(context.Background(), model.Document{}, model.Chunk{ID: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected no HTTP call for a chunk with no embedding")
	}
}

func TestUpsertChunk_WritesPoint(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "chunks", 3, zap.NewNop())
	chunk := model.Chunk{
		ID:         "c1",
		DocumentID: "d1",
		Text:       "hello",
		Enrichment: &model.Enrichment{Embedding: []float32{0.1, 0.2, 0.3}},
	}
	err := s.UpsertChunk(context.Background(), model.Document{URL: "http://x", Title: "t"}, chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody == nil {
		t.Fatalf("expected request body to be captured")
	}
}

func TestSearchByVector_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[{"id":"c1","score":0.9,"payload":{"document_id":"d1","text":"hi"}}]}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "chunks", 3, zap.NewNop())
	hits, err := s.SearchByVector(context.Background(), []float32{0.1, 0.2, 0.3}, 5, store.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "c1" || hits[0].DocumentID != "d1" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearch_RejectsFreeTextQuery(t *testing.T) {
	s := New("http://unused", "chunks", 3, zap.NewNop())
	_, err := s.Search(context.Background(), "hello", 5, store.Filter{})
	if err == nil {
		t.Fatalf("expected Search to reject free-text queries on the vector backend")
	}
}
