package store

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// FanoutResult records the per-backend outcome of one UpsertChunk fan-out
// call. The pipeline orchestrator reads only RelationalErr: a relational
// failure counts against the document, while vector and lexical failures
// are logged here and never fail the chunk or the document. No
// per-document vector success ratio is applied anywhere.
type FanoutResult struct {
	RelationalErr error
	VectorErr     error
	LexicalErr    error
}

// Fanout writes a document/chunk to all three backends concurrently and
// reports each backend's outcome independently; it never itself decides
// whether the document as a whole succeeded; the pipeline orchestrator,
// which has the full-document view, decides that from relational
// failures alone.
type Fanout struct {
	Relational Adapter
	Vector     Adapter
	Lexical    Adapter
	Logger     *zap.Logger
}

// NewFanout builds a Fanout over the three concrete backends.
func NewFanout(relational, vector, lexical Adapter, logger *zap.Logger) *Fanout {
	return &Fanout{Relational: relational, Vector: vector, Lexical: lexical, Logger: logger}
}

// UpsertDocument writes the document row to the relational backend only;
// the other two backends have no document-level row of their own.
func (f *Fanout) UpsertDocument(ctx context.Context, doc model.Document) error {
	if err := f.Relational.UpsertDocument(ctx, doc); err != nil {
		return apperr.Wrap(apperr.FatalDatabase, "upsert document", err)
	}
	return nil
}

// UpsertChunk fans a single chunk out to all three backends in parallel
// and returns each backend's error independently rather than failing
// fast, so the caller can apply the per-backend tolerance spec.md §4.3
// describes.
func (f *Fanout) UpsertChunk(ctx context.Context, doc model.Document, chunk model.Chunk) FanoutResult {
	var res FanoutResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res.RelationalErr = f.Relational.UpsertChunk(gctx, doc, chunk)
		return nil
	})
	g.Go(func() error {
		res.VectorErr = f.Vector.UpsertChunk(gctx, doc, chunk)
		return nil
	})
	g.Go(func() error {
		res.LexicalErr = f.Lexical.UpsertChunk(gctx, doc, chunk)
		return nil
	})
	_ = g.Wait()

	if res.VectorErr != nil {
		f.Logger.Warn("vector upsert failed", zap.String("chunk_id", chunk.ID), zap.Error(res.VectorErr))
	}
	if res.LexicalErr != nil {
		f.Logger.Warn("lexical upsert failed", zap.String("chunk_id", chunk.ID), zap.Error(res.LexicalErr))
	}
	return res
}

// DeleteDocument removes the document from all three backends, tolerating
// individual backend failures and reporting the first relational failure
// (the only mandatory backend) as the operation's error.
func (f *Fanout) DeleteDocument(ctx context.Context, documentID string) error {
	g, gctx := errgroup.WithContext(ctx)
	var relErr, vecErr, lexErr error

	g.Go(func() error { relErr = f.Relational.DeleteDocument(gctx, documentID); return nil })
	g.Go(func() error { vecErr = f.Vector.DeleteDocument(gctx, documentID); return nil })
	g.Go(func() error { lexErr = f.Lexical.DeleteDocument(gctx, documentID); return nil })
	_ = g.Wait()

	if vecErr != nil {
		f.Logger.Warn("vector delete failed", zap.String("document_id", documentID), zap.Error(vecErr))
	}
	if lexErr != nil {
		f.Logger.Warn("lexical delete failed", zap.String("document_id", documentID), zap.Error(lexErr))
	}
	if relErr != nil {
		return apperr.Wrap(apperr.FatalDatabase, "delete document", relErr)
	}
	return nil
}
