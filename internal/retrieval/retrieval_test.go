package retrieval

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/store"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, input string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeVector struct {
	hits []store.SearchHit
	err  error
}

func (f *fakeVector) SearchByVector(ctx context.Context, v []float32, k int, filter store.Filter) ([]store.SearchHit, error) {
	return f.hits, f.err
}

type fakeLexical struct {
	hits []store.SearchHit
	err  error
}

func (f *fakeLexical) Search(ctx context.Context, query string, k int, filter store.Filter) ([]store.SearchHit, error) {
	return f.hits, f.err
}

func TestQuery_FusesBothBackends(t *testing.T) {
	vec := &fakeVector{hits: []store.SearchHit{{ChunkID: "a"}, {ChunkID: "b"}}}
	lex := &fakeLexical{hits: []store.SearchHit{{ChunkID: "b"}, {ChunkID: "c"}}}
	r := New(&fakeEmbedder{}, vec, lex, zap.NewNop())

	resp, err := r.Query(context.Background(), "q", 3, store.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Degraded {
		t.Fatalf("expected non-degraded response")
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(resp.Results))
	}
	// "b" appears in both lists at rank 2 and rank 1 respectively, so it
	// should score highest.
	if resp.Results[0].ChunkID != "b" {
		t.Fatalf("expected chunk b to rank first, got %s", resp.Results[0].ChunkID)
	}
}

func TestQuery_DegradesToLexicalWhenVectorFails(t *testing.T) {
	lex := &fakeLexical{hits: []store.SearchHit{{ChunkID: "c"}}}
	r := New(&fakeEmbedder{err: errors.New("embedding down")}, &fakeVector{}, lex, zap.NewNop())

	resp, err := r.Query(context.Background(), "q", 3, store.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Degraded || resp.Source != "lexical" {
		t.Fatalf("expected degraded lexical-only response, got %+v", resp)
	}
	if len(resp.Results) != 1 || resp.Results[0].ChunkID != "c" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
}

func TestQuery_DegradesToVectorWhenLexicalFails(t *testing.T) {
	vec := &fakeVector{hits: []store.SearchHit{{ChunkID: "a"}}}
	lex := &fakeLexical{err: errors.New("lexical down")}
	r := New(&fakeEmbedder{}, vec, lex, zap.NewNop())

	resp, err := r.Query(context.Background(), "q", 3, store.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Degraded || resp.Source != "vector" {
		t.Fatalf("expected degraded vector-only response, got %+v", resp)
	}
}
