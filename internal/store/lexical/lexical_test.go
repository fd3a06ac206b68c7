package lexical

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

func TestUpsertChunk_Indexes(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "chunks", zap.NewNop())
	err := s.UpsertChunk(context.Background(), model.Document{URL: "http://x"}, model.Chunk{ID: "c1", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/index/chunks" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
}

func TestSearch_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[{"id":"c1","document_id":"d1","text":"hi","score":1.5}]}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "chunks", zap.NewNop())
	hits, err := s.Search(context.Background(), "hello", 5, store.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 1.5 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestHealthy_FalseWhenUnreachable(t *testing.T) {
	s := New("http://127.0.0.1:1", "chunks", zap.NewNop())
	if s.Healthy(context.Background()) {
		t.Fatalf("expected Healthy to be false for an unreachable backend")
	}
}
