package store

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

type fakeAdapter struct {
	upsertDocErr   error
	upsertChunkErr error
	deleteErr      error
}

func (f *fakeAdapter) UpsertDocument(ctx context.Context, doc model.Document) error {
	return f.upsertDocErr
}
func (f *fakeAdapter) UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) error {
	return f.upsertChunkErr
}
func (f *fakeAdapter) DeleteDocument(ctx context.Context, documentID string) error {
	return f.deleteErr
}
func (f *fakeAdapter) Search(ctx context.Context, query string, k int, filter Filter) ([]SearchHit, error) {
	return nil, nil
}

func TestFanout_UpsertChunk_ToleratesVectorAndLexicalFailures(t *testing.T) {
	fo := NewFanout(
		&fakeAdapter{},
		&fakeAdapter{upsertChunkErr: errors.New("vector down")},
		&fakeAdapter{upsertChunkErr: errors.New("lexical down")},
		zap.NewNop(),
	)
	res := fo.UpsertChunk(context.Background(), model.Document{}, model.Chunk{ID: "c1"})
	if res.RelationalErr != nil {
		t.Fatalf("expected relational success, got %v", res.RelationalErr)
	}
	if res.VectorErr == nil || res.LexicalErr == nil {
		t.Fatalf("expected vector/lexical errors to be reported, got %+v", res)
	}
}

func TestFanout_DeleteDocument_FailsOnRelationalError(t *testing.T) {
	fo := NewFanout(
		&fakeAdapter{deleteErr: errors.New("db down")},
		&fakeAdapter{},
		&fakeAdapter{},
		zap.NewNop(),
	)
	err := fo.DeleteDocument(context.Background(), "d1")
	if err == nil {
		t.Fatalf("expected delete to fail when the relational backend fails")
	}
}

func TestFanout_DeleteDocument_ToleratesVectorLexicalFailure(t *testing.T) {
	fo := NewFanout(
		&fakeAdapter{},
		&fakeAdapter{deleteErr: errors.New("vector down")},
		&fakeAdapter{deleteErr: errors.New("lexical down")},
		zap.NewNop(),
	)
	err := fo.DeleteDocument(context.Background(), "d1")
	if err != nil {
		t.Fatalf("expected delete to succeed despite vector/lexical failures, got %v", err)
	}
}
